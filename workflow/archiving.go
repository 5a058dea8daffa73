package workflow

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/dsrph/registry_backend/models"
	"github.com/dsrph/registry_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	compressionGzip = "gzip"
	scanLockKey     = "registry:retention-scan:"
)

// SnapshotCodec turns an entity snapshot into the stored archive form and
// back: JSON, gzip, AES-256-GCM, base64. The checksum covers the plaintext
// JSON and is verified on every restore.
type SnapshotCodec struct {
	keyID string
	key   []byte
}

// NewSnapshotCodec reads the archive key from ARCHIVE_ENCRYPTION_KEY (hex,
// 32 bytes) and its identifier from ARCHIVE_ENCRYPTION_KEY_ID. Without a key
// the codec compresses only.
func NewSnapshotCodec() (*SnapshotCodec, error) {
	keyHex := os.Getenv("ARCHIVE_ENCRYPTION_KEY")
	if keyHex == "" {
		return &SnapshotCodec{}, nil
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("ARCHIVE_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ARCHIVE_ENCRYPTION_KEY must be 32 bytes, got %d", len(key))
	}
	keyID := os.Getenv("ARCHIVE_ENCRYPTION_KEY_ID")
	if keyID == "" {
		keyID = "default"
	}
	return &SnapshotCodec{keyID: keyID, key: key}, nil
}

func (c *SnapshotCodec) Encrypts() bool { return len(c.key) > 0 }
func (c *SnapshotCodec) KeyID() string  { return c.keyID }

// Encode produces the base64 snapshot plus the plaintext checksum.
func (c *SnapshotCodec) Encode(plaintext []byte) (snapshot, checksum string, err error) {
	sum := sha256.Sum256(plaintext)
	checksum = hex.EncodeToString(sum[:])

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err = gz.Write(plaintext); err != nil {
		return "", "", err
	}
	if err = gz.Close(); err != nil {
		return "", "", err
	}
	data := buf.Bytes()

	if c.Encrypts() {
		if data, err = c.encrypt(data); err != nil {
			return "", "", err
		}
	}
	return base64.StdEncoding.EncodeToString(data), checksum, nil
}

// Decode reverses Encode and fails with an IntegrityError when the plaintext
// checksum no longer matches.
func (c *SnapshotCodec) Decode(archived *models.ArchivedData) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(archived.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("archive %s snapshot is not valid base64: %w", archived.ID, err)
	}
	if archived.IsEncrypted != nil && *archived.IsEncrypted {
		if !c.Encrypts() {
			return nil, fmt.Errorf("archive %s is encrypted but no key is configured", archived.ID)
		}
		if data, err = c.decrypt(data); err != nil {
			return nil, fmt.Errorf("archive %s decrypt: %w", archived.ID, err)
		}
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("archive %s gunzip: %w", archived.ID, err)
	}
	plaintext, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("archive %s gunzip: %w", archived.ID, err)
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(plaintext)
	actual := hex.EncodeToString(sum[:])
	if actual != archived.Checksum {
		return nil, &IntegrityError{ArchiveID: archived.ID, Expected: archived.Checksum, Actual: actual}
	}
	return plaintext, nil
}

func (c *SnapshotCodec) encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (c *SnapshotCodec) decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// householdSnapshot is the archived shape of a household: the entity, its
// members, and its assessment history in one document.
type householdSnapshot struct {
	Household models.Household         `json:"household"`
	Members   []models.HouseholdMember `json:"members"`
	Profiles  []models.EconomicProfile `json:"economic_profiles"`
}

// Archiver moves expired entities out of the live tables into encrypted
// snapshots, expires old snapshots, and restores them on demand.
type Archiver struct {
	stores *Stores
	codec  *SnapshotCodec
	locker *redislock.Client
	cfg    PipelineConfig
	logger *logrus.Logger
}

func NewArchiver(stores *Stores, codec *SnapshotCodec, locker *redislock.Client, cfg PipelineConfig, logger *logrus.Logger) *Archiver {
	return &Archiver{stores: stores, codec: codec, locker: locker, cfg: cfg, logger: logger}
}

// ScanReport summarizes one retention scan pass.
type ScanReport struct {
	Archived int
	Expired  int
	Skipped  int
}

// Scan runs one retention pass for households: archive entities past the
// policy's archive window, then expire archives past their retention date.
// A Redis lease keeps overlapping scheduled runs from double-processing; a
// held lease means another node is on it and this run exits quietly.
func (a *Archiver) Scan(ctx context.Context) (ScanReport, error) {
	var report ScanReport

	if a.locker != nil {
		lock, err := a.locker.Obtain(ctx, scanLockKey+"HOUSEHOLD", a.cfg.ScanLockTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				a.logger.Info("retention scan already running elsewhere, skipping")
				return report, nil
			}
			return report, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				a.logger.WithError(err).Warn("failed to release retention scan lock")
			}
		}()
	}

	now := time.Now().UTC()
	policy, err := a.stores.Policies.ActiveFor(ctx, "HOUSEHOLD", now)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			a.logger.Info("no active retention policy for households, nothing to do")
			return report, nil
		}
		return report, err
	}

	if policy.AutoArchiveEnabled != nil && *policy.AutoArchiveEnabled && policy.ArchiveAfterDays != nil {
		cutoff := now.AddDate(0, 0, -*policy.ArchiveAfterDays)
		households, err := a.stores.Households.ListArchivable(ctx, cutoff, a.cfg.ArchiveBatchSize)
		if err != nil {
			return report, err
		}
		for i := range households {
			if err := a.ArchiveHousehold(ctx, &households[i], policy, "retention policy", "retention-scan"); err != nil {
				report.Skipped++
				a.logger.WithFields(logrus.Fields{"household_id": households[i].ID}).
					WithError(err).Error("failed to archive household")
				continue
			}
			report.Archived++
		}
	}

	expired, err := a.ExpirePass(ctx, now, policy)
	if err != nil {
		return report, err
	}
	report.Expired = expired

	a.logger.WithFields(logrus.Fields{
		"archived": report.Archived,
		"expired":  report.Expired,
		"skipped":  report.Skipped,
	}).Info("retention scan finished")
	return report, nil
}

// ArchiveHousehold snapshots one household with its members and assessment
// history, writes the archive row, removes the aggregate from the live
// tables, and emits ENTITY_ARCHIVED, all in one transaction. The snapshot is
// the only remaining copy afterwards.
func (a *Archiver) ArchiveHousehold(ctx context.Context, hh *models.Household, policy *models.RetentionPolicy, reason, archivedBy string) error {
	members, err := a.stores.Households.ListMembers(ctx, hh.ID)
	if err != nil {
		return err
	}
	profiles, err := a.stores.Profiles.ListForHousehold(ctx, hh.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	frozen := *hh
	frozen.Status = models.HouseholdStatusArchived
	frozen.ArchivedAt = &now

	plaintext, err := json.Marshal(householdSnapshot{Household: frozen, Members: members, Profiles: profiles})
	if err != nil {
		return err
	}
	snapshot, checksum, err := a.codec.Encode(plaintext)
	if err != nil {
		return err
	}

	archived := &models.ArchivedData{
		ID:                uuid.NewString(),
		OriginalEntityID:  hh.ID,
		EntityType:        "HOUSEHOLD",
		Snapshot:          snapshot,
		ArchiveReason:     reason,
		ArchivedBy:        archivedBy,
		Checksum:          checksum,
		CompressionType:   compressionGzip,
		SnapshotBytes:     int64(len(snapshot)),
		Status:            models.ArchiveStatusActive,
		OriginalCreatedAt: &hh.CreatedAt,
		RetentionUntil:    policy.CalculateRetentionUntil(now),
	}
	if a.codec.Encrypts() {
		archived.IsEncrypted = utils.NewTrue()
		archived.EncryptionKeyID = a.codec.KeyID()
	} else {
		archived.IsEncrypted = utils.NewFalse()
	}

	return a.stores.InTx(ctx, func(tx *Stores) error {
		if err := tx.Archives.Create(ctx, archived); err != nil {
			return err
		}
		if err := tx.Households.Delete(ctx, hh.ID); err != nil {
			return err
		}
		return tx.Outbox.Append(ctx, models.EventEntityArchived, "HOUSEHOLD", hh.ID, "",
			map[string]any{"archive_id": archived.ID, "retention_until": archived.RetentionUntil})
	})
}

// ExpirePass marks archives past their retention date EXPIRED, then, when the
// policy allows automatic deletion, purges EXPIRED archives: the row flips to
// DELETED and its snapshot payload is erased. Every archive passes through
// EXPIRED, so a run that dies between the phases leaves nothing half-deleted.
func (a *Archiver) ExpirePass(ctx context.Context, now time.Time, policy *models.RetentionPolicy) (int, error) {
	expired, err := a.stores.Archives.ListExpired(ctx, now, a.cfg.ArchiveBatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range expired {
		archive := expired[i]
		err := a.stores.InTx(ctx, func(tx *Stores) error {
			if err := tx.Archives.SetStatus(ctx, archive.ID, models.ArchiveStatusExpired); err != nil {
				return err
			}
			return tx.Outbox.Append(ctx, models.EventArchiveExpired, archive.EntityType, archive.OriginalEntityID, "",
				map[string]any{"archive_id": archive.ID, "status": models.ArchiveStatusExpired})
		})
		if err != nil {
			a.logger.WithFields(logrus.Fields{"archive_id": archive.ID}).
				WithError(err).Error("failed to expire archive")
			continue
		}
		count++
	}

	if policy != nil && policy.AutoDeleteEnabled != nil && *policy.AutoDeleteEnabled {
		deletable, err := a.stores.Archives.ListDeletable(ctx, a.cfg.ArchiveBatchSize)
		if err != nil {
			return count, err
		}
		for i := range deletable {
			archive := deletable[i]
			err := a.stores.InTx(ctx, func(tx *Stores) error {
				if err := tx.Archives.MarkDeleted(ctx, archive.ID); err != nil {
					return err
				}
				return tx.Outbox.Append(ctx, models.EventArchiveExpired, archive.EntityType, archive.OriginalEntityID, "",
					map[string]any{"archive_id": archive.ID, "status": models.ArchiveStatusDeleted})
			})
			if err != nil {
				a.logger.WithFields(logrus.Fields{"archive_id": archive.ID}).
					WithError(err).Error("failed to delete expired archive")
			}
		}
	}
	return count, nil
}

// Restore brings an archived household back into the live tables. The
// snapshot checksum is verified before anything is written; a mismatch
// surfaces as an IntegrityError and restores nothing.
func (a *Archiver) Restore(ctx context.Context, archiveID, restoredBy, reason string) (*models.Household, error) {
	archived, err := a.stores.Archives.Get(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	if archived.IsRestored() {
		return nil, fmt.Errorf("archive %s was already restored", archiveID)
	}
	if archived.Status == models.ArchiveStatusDeleted {
		return nil, fmt.Errorf("archive %s was deleted and cannot be restored", archiveID)
	}

	plaintext, err := a.codec.Decode(archived)
	if err != nil {
		return nil, err
	}
	var snapshot householdSnapshot
	if err := json.Unmarshal(plaintext, &snapshot); err != nil {
		return nil, fmt.Errorf("archive %s snapshot decode: %w", archiveID, err)
	}

	now := time.Now().UTC()
	hh := snapshot.Household
	hh.Status = models.HouseholdStatusActive
	hh.ArchivedAt = nil

	err = a.stores.InTx(ctx, func(tx *Stores) error {
		if err := tx.Households.Create(ctx, &hh); err != nil {
			return err
		}
		for i := range snapshot.Members {
			if err := tx.Households.AddMember(ctx, &snapshot.Members[i]); err != nil {
				return err
			}
		}
		for i := range snapshot.Profiles {
			profile := snapshot.Profiles[i]
			profile.ArchivedAt = nil
			if err := tx.Profiles.Create(ctx, &profile); err != nil {
				return err
			}
		}
		if err := tx.Archives.MarkRestored(ctx, archiveID, restoredBy, reason, now); err != nil {
			return err
		}
		return tx.Outbox.Append(ctx, models.EventEntityRestored, "HOUSEHOLD", hh.ID, "",
			map[string]any{"archive_id": archiveID, "restored_by": restoredBy})
	})
	if err != nil {
		return nil, err
	}
	return &hh, nil
}
