package crmsync

import "strings"

// The CRM exposes no organization or subject list endpoints, so both
// are recovered from the embedded references on the feeds we do get.
// Pure functions, no I/O.

// extractOrganizations collects the distinct organizations referenced
// by students, teachers and groups. Later occurrences of the same id
// keep the first complete record.
func extractOrganizations(students []CrmStudent, teachers []CrmTeacher, groups []CrmGroup) map[int64]CrmOrganization {
	orgs := make(map[int64]CrmOrganization)
	add := func(org *CrmOrganization) {
		if org == nil || org.ID == 0 {
			return
		}
		if _, ok := orgs[org.ID]; !ok {
			orgs[org.ID] = *org
		}
	}
	for i := range students {
		add(students[i].Organization)
	}
	for i := range teachers {
		add(teachers[i].Organization)
	}
	for i := range groups {
		add(groups[i].Organization)
	}
	return orgs
}

// extractSubjects collects distinct subjects from teacher subject
// lists, teacher group assignments and specialty subject sets.
func extractSubjects(teachers []CrmTeacher, specialties []CrmSpecialty) map[int64]string {
	subjects := make(map[int64]string)
	add := func(id int64, name string) {
		name = strings.TrimSpace(name)
		if id == 0 || name == "" {
			return
		}
		if _, ok := subjects[id]; !ok {
			subjects[id] = name
		}
	}
	for i := range teachers {
		for _, subj := range teachers[i].Subjects {
			add(subj.ID, subj.Name)
		}
		for _, grp := range teachers[i].Groups {
			if grp.Subject != nil {
				add(grp.Subject.ID, grp.Subject.Name)
			}
		}
	}
	for i := range specialties {
		for _, subj := range specialties[i].Subjects {
			add(subj.ID, subj.Name)
		}
	}
	return subjects
}
