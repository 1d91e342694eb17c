// Package kvstore is the embedded tunables store of spec.md §1: "a
// configuration database / key-value store... used only for a few
// tunables" — the per-entity probability knobs (comp_restart_prob,
// su_restart_prob, su_failover_prob, auto_adjust_prob) that an operator may
// want to override live, without going through a config reload. Backed by
// github.com/tidwall/buntdb, an embedded ordered KV store, so a single node
// doesn't need a network dependency for a handful of int32 values. The
// reactor does not read this store: a value set here does not change any
// field of the loaded Graph.
package kvstore

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
)

// Tunable names the well-known probability knobs the store holds. These
// mirror the entity fields of the same name in cluster.ServiceGroup/Node
// (§6.2 defaults).
type Tunable string

const (
	CompRestartProb Tunable = "comp_restart_prob"
	SURestartProb   Tunable = "su_restart_prob"
	SUFailoverProb  Tunable = "su_failover_prob"
	AutoAdjustProb  Tunable = "auto_adjust_prob"
)

// Store wraps a buntdb database keyed by "<dn>/<tunable>".
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if absent) the tunables store at path. Pass ":memory:"
// for an ephemeral in-process store, e.g. in tests.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: open %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(dn string, t Tunable) string { return dn + "/" + string(t) }

// Get returns the stored override for (dn, t), or ok=false if unset.
func (s *Store) Get(dn string, t Tunable) (value int32, ok bool, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		v, getErr := tx.Get(key(dn, t))
		if getErr == buntdb.ErrNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		n, parseErr := strconv.ParseInt(v, 10, 32)
		if parseErr != nil {
			return parseErr
		}
		value, ok = int32(n), true
		return nil
	})
	if err != nil {
		return 0, false, errors.Wrapf(err, "kvstore: get %s", key(dn, t))
	}
	return value, ok, nil
}

// Set stores an override for (dn, t), persisted across restarts.
func (s *Store) Set(dn string, t Tunable, value int32) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(dn, t), strconv.FormatInt(int64(value), 10), nil)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "kvstore: set %s", key(dn, t))
	}
	return nil
}

// Delete removes the stored override for (dn, t); a later Get reports
// ok=false.
func (s *Store) Delete(dn string, t Tunable) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key(dn, t))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "kvstore: delete %s", key(dn, t))
	}
	return nil
}

// All returns every stored (dn, tunable) -> value pair under a DN prefix,
// keyed by the full "<dn>/<tunable>" store key. The admin CLI's print-all
// action uses AllRaw, not All.
func (s *Store) All(dnPrefix string) (map[string]int32, error) {
	out := make(map[string]int32)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(dnPrefix+"*", func(k, v string) bool {
			n, parseErr := strconv.ParseInt(v, 10, 32)
			if parseErr != nil {
				return true
			}
			out[k] = int32(n)
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: scan %s", dnPrefix)
	}
	return out, nil
}

// existsMarker is the key suffix recording that a DN "object" has been
// created via amfctl's create-object action, distinct from an object simply
// owning one or more tunable overrides.
const existsMarker = "\x00exists"

// rawKey builds the flat "<dn>/<key>" keyspace the admin CLI (§6.6) reads
// and writes, independent of the Tunable-typed keys above.
func rawKey(dn, key string) string { return dn + "/" + key }

// GetRaw reads an arbitrary string value stored by the admin CLI.
func (s *Store) GetRaw(dn, key string) (value string, ok bool, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		v, getErr := tx.Get(rawKey(dn, key))
		if getErr == buntdb.ErrNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		value, ok = v, true
		return nil
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "kvstore: get %s", rawKey(dn, key))
	}
	return value, ok, nil
}

// SetRaw stores an arbitrary string value under dn/key.
func (s *Store) SetRaw(dn, key, value string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(rawKey(dn, key), value, nil)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "kvstore: set %s", rawKey(dn, key))
	}
	return nil
}

// DeleteRawKey removes a single dn/key entry.
func (s *Store) DeleteRawKey(dn, key string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(rawKey(dn, key))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "kvstore: delete %s", rawKey(dn, key))
	}
	return nil
}

// ObjectExists reports whether dn has been created, either explicitly via
// CreateObject or implicitly by owning at least one key.
func (s *Store) ObjectExists(dn string) (bool, error) {
	if _, ok, err := s.GetRaw(dn, existsMarker); err != nil || ok {
		return ok, err
	}
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(dn+"/*", func(k, v string) bool {
			found = true
			return false
		})
	})
	if err != nil {
		return false, errors.Wrapf(err, "kvstore: scan %s", dn)
	}
	return found, nil
}

// CreateObject marks dn as existing without assigning it any key yet.
func (s *Store) CreateObject(dn string) error {
	return s.SetRaw(dn, existsMarker, "1")
}

// DeleteObject removes dn's exists marker and every key it owns.
func (s *Store) DeleteObject(dn string) error {
	var keys []string
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(dn+"/*", func(k, v string) bool {
			keys = append(keys, k)
			return true
		})
	})
	if err != nil {
		return errors.Wrapf(err, "kvstore: scan %s", dn)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

// AllRaw returns every "<dn>/<key>" -> value pair under keyPrefix (pass ""
// for the whole store), used by print-all and track-changes.
func (s *Store) AllRaw(keyPrefix string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(keyPrefix+"*", func(k, v string) bool {
			out[k] = v
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kvstore: scan %s", keyPrefix)
	}
	return out, nil
}
