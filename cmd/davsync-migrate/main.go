// Command davsync-migrate upgrades a davsync.db file written by an older
// schema version in place.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/davsyncd", "davsyncd data directory")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up the database before migration (default: <data-dir>/davsync.db.backup)")
)

var bucketResources = []byte("resources")

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("davsync schema migration tool - backfilling FileState")
	log.Println("======================================================")

	dbPath := filepath.Join(*dataDir, "davsync.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}

	log.Printf("database: %s", dbPath)
	log.Printf("dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("failed to create backup: %v", err)
		}
		log.Println("backup created")
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := backfillFileState(db, *dryRun); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	if *dryRun {
		log.Println("dry run complete, no changes made")
	} else {
		log.Println("migration complete")
	}
}

// backfillFileState walks the resources bucket for records written before
// FileState existed on the schema and sets it to the absent state, matching
// what a fresh Store read of a record with a missing field already produces
// on the read path - this just makes the on-disk bytes agree with that.
func backfillFileState(db *bolt.DB, dryRun bool) error {
	type stale struct {
		key []byte
		raw map[string]any
	}
	var toFix []stale
	var total int

	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResources)
		if b == nil {
			log.Println("no resources bucket found; nothing to migrate")
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			total++
			var raw map[string]any
			if err := json.Unmarshal(v, &raw); err != nil {
				log.Printf("warning: skipping undecodable record %s: %v", k, err)
				return nil
			}
			if _, ok := raw["FileState"]; !ok {
				toFix = append(toFix, stale{key: append([]byte(nil), k...), raw: raw})
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Printf("scanned %d resource record(s), %d missing FileState", total, len(toFix))
	if len(toFix) == 0 {
		return nil
	}
	if dryRun {
		for _, s := range toFix {
			log.Printf("[dry run] would backfill %s", s.key)
		}
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResources)
		for _, s := range toFix {
			s.raw["FileState"] = map[string]any{"Kind": 0, "LocalPath": "", "StoredVersion": ""}
			data, err := json.Marshal(s.raw)
			if err != nil {
				return fmt.Errorf("re-encode %s: %w", s.key, err)
			}
			if err := b.Put(s.key, data); err != nil {
				return fmt.Errorf("write %s: %w", s.key, err)
			}
		}
		log.Printf("backfilled %d record(s)", len(toFix))
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
