package merge

import (
	"fmt"

	"github.com/sydlexius/crawler/internal/model"
)

// Reconcile moves artists between master's credit buckets so that they agree
// with the slave's classification. Both lists are ordered from the most
// general bucket to the most specific one and must have the same length.
//
// For every artist in slave bucket i:
//   - already in master bucket i: nothing changes;
//   - in a more general master bucket: moved to bucket i;
//   - in a more specific master bucket: left there;
//   - absent from master: added to bucket i.
//
// Artists are only moved, never dropped, and no artist ends up in two
// buckets through this function.
func Reconcile(master, slave []*model.CreditSet) error {
	if len(master) != len(slave) {
		return fmt.Errorf("reconciling credits: master has %d buckets, slave has %d", len(master), len(slave))
	}
	for i, bucket := range slave {
		for _, a := range bucket.Artists() {
			if master[i].Contains(a) {
				continue
			}
			if j := find(master[:i], a); j >= 0 {
				master[j].Remove(a)
				master[i].Add(a)
				continue
			}
			if find(master[i+1:], a) >= 0 {
				continue
			}
			master[i].Add(a)
		}
	}
	return nil
}

func find(buckets []*model.CreditSet, a *model.Artist) int {
	for i, b := range buckets {
		if b.Contains(a) {
			return i
		}
	}
	return -1
}
