package crmsync

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// errSkipRecord marks a CRM record whose required references are not
// resolvable locally. The record is left out of the run without
// failing it.
var errSkipRecord = errors.New("skip record")

// entitySyncer reconciles one CRM feed against one local table keyed
// by crm_id. R is the CRM record type, M the local model.
type entitySyncer[R any, M any] struct {
	name string

	// externalID extracts the CRM id; ok=false drops the record.
	externalID func(rec R) (int64, bool)
	// findFallback optionally matches a local row that has no crm_id
	// yet, so locally created rows get adopted instead of duplicated.
	findFallback func(tx *gorm.DB, rec R) (*M, bool, error)
	// assign maps the CRM record onto the model. Runs for both new and
	// existing rows; returns errSkipRecord when references are missing.
	assign func(tx *gorm.DB, rec R, m *M) error
	// onCreate runs before the insert of a new row only.
	onCreate func(tx *gorm.DB, rec R, m *M) error
	// afterSave runs after the row is persisted, for junction upkeep.
	afterSave func(tx *gorm.DB, rec R, m *M) error
	// deactivate enables the mark-missing-rows-inactive pass.
	deactivate bool
}

func findByCrmID[M any](tx *gorm.DB, crmID int64) (*M, bool, error) {
	var m M
	err := tx.Where("crm_id = ?", crmID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

// run upserts every record and, when the feed is complete and
// non-empty, deactivates local synced rows absent from it. An empty or
// incomplete feed never deactivates anything.
func (s *entitySyncer[R, M]) run(tx *gorm.DB, items []R, feedComplete bool) (EntityStats, error) {
	var stats EntityStats
	seen := make(map[int64]struct{}, len(items))

	for i := range items {
		rec := items[i]
		crmID, ok := s.externalID(rec)
		if !ok {
			continue
		}
		seen[crmID] = struct{}{}

		m, found, err := findByCrmID[M](tx, crmID)
		if err != nil {
			return stats, fmt.Errorf("sync %s %d: lookup: %w", s.name, crmID, err)
		}
		if !found && s.findFallback != nil {
			m, found, err = s.findFallback(tx, rec)
			if err != nil {
				return stats, fmt.Errorf("sync %s %d: fallback lookup: %w", s.name, crmID, err)
			}
		}
		if !found {
			m = new(M)
		}

		if err := s.assign(tx, rec, m); err != nil {
			if errors.Is(err, errSkipRecord) {
				continue
			}
			return stats, fmt.Errorf("sync %s %d: %w", s.name, crmID, err)
		}

		if found {
			if err := tx.Save(m).Error; err != nil {
				return stats, fmt.Errorf("sync %s %d: update: %w", s.name, crmID, err)
			}
			stats.Updated++
		} else {
			if s.onCreate != nil {
				if err := s.onCreate(tx, rec, m); err != nil {
					if errors.Is(err, errSkipRecord) {
						continue
					}
					return stats, fmt.Errorf("sync %s %d: %w", s.name, crmID, err)
				}
			}
			if err := tx.Create(m).Error; err != nil {
				return stats, fmt.Errorf("sync %s %d: create: %w", s.name, crmID, err)
			}
			stats.Created++
		}

		if s.afterSave != nil {
			if err := s.afterSave(tx, rec, m); err != nil {
				return stats, fmt.Errorf("sync %s %d: %w", s.name, crmID, err)
			}
		}
	}

	if s.deactivate && feedComplete && len(seen) > 0 {
		n, err := deactivateMissing[M](tx, seen)
		if err != nil {
			return stats, fmt.Errorf("sync %s: deactivate: %w", s.name, err)
		}
		stats.Deactivated = int(n)
	}
	return stats, nil
}

// deactivateMissing flips is_active on synced rows whose crm_id was
// not seen in this run. Rows without a crm_id belong to us and are
// never touched.
func deactivateMissing[M any](tx *gorm.DB, seen map[int64]struct{}) (int64, error) {
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	res := tx.Model(new(M)).
		Where("crm_id IS NOT NULL AND is_active = ? AND crm_id NOT IN ?", true, ids).
		Updates(map[string]interface{}{"is_active": false})
	return res.RowsAffected, res.Error
}
