package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"

	"github.com/edvin/backhaul/internal/crypto"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/storage"
)

// SecretSentinel is the prefix masked secrets are rendered with. A submitted
// secret starting with it means "keep the stored value".
const SecretSentinel = "********"

var ErrInvalidBackupTime = errors.New("backup time must be HH:MM")

// SettingsService owns the singleton backup configuration row. Storage
// credentials are sealed with the secrets key before they touch the
// database and only ever leave it masked.
type SettingsService struct {
	db  DB
	key []byte
}

func NewSettingsService(db DB, key []byte) *SettingsService {
	return &SettingsService{db: db, key: key}
}

// defaults is the configuration a fresh installation sees before anything
// was ever saved.
func defaults() *model.BackupSettings {
	return &model.BackupSettings{
		HostingType:    model.HostingSelfHosted,
		StorageType:    model.StorageLocal,
		AutoBackup:     false,
		Frequency:      model.FrequencyDaily,
		BackupTime:     "02:00",
		BackupDatabase: true,
		BackupUploads:  true,
		KeepBackups:    5,
	}
}

const settingsColumns = `hosting_type, storage_type, auto_backup, frequency, backup_time,
	 email_notify, notify_email, backup_database, backup_uploads, keep_backups,
	 storage_config_enc, next_run_at, created_at, updated_at`

// Get returns the stored settings, or defaults when nothing was saved yet.
func (s *SettingsService) Get(ctx context.Context) (*model.BackupSettings, error) {
	var st model.BackupSettings
	err := s.db.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM backup_settings WHERE id = 1`,
	).Scan(&st.HostingType, &st.StorageType, &st.AutoBackup, &st.Frequency, &st.BackupTime,
		&st.EmailNotify, &st.NotifyEmail, &st.BackupDatabase, &st.BackupUploads, &st.KeepBackups,
		&st.StorageConfigEnc, &st.NextRunAt, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup settings: %w", err)
	}
	return &st, nil
}

// StorageConfig decrypts the stored credential blob. A missing blob yields an
// empty config, which is valid for local storage.
func (s *SettingsService) StorageConfig(ctx context.Context, st *model.BackupSettings) (*storage.Config, error) {
	if st.StorageConfigEnc == "" {
		return &storage.Config{}, nil
	}
	raw, err := crypto.Decrypt(st.StorageConfigEnc, s.key)
	if err != nil {
		return nil, fmt.Errorf("unseal storage config: %w", err)
	}
	return storage.ParseConfig(raw)
}

// SettingsView is the settings row as served over the API: the credential
// blob decrypted but with every secret masked.
type SettingsView struct {
	model.BackupSettings
	StorageConfig storage.Config `json:"storage_config"`
}

// GetMasked returns the settings with secrets replaced by the sentinel plus
// at most their last four characters.
func (s *SettingsService) GetMasked(ctx context.Context) (*SettingsView, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.StorageConfig(ctx, st)
	if err != nil {
		return nil, err
	}

	masked := *cfg
	if cfg.Drive != nil {
		d := *cfg.Drive
		d.PrivateKey = MaskSecret(d.PrivateKey)
		masked.Drive = &d
	}
	if cfg.B2 != nil {
		b := *cfg.B2
		b.ApplicationKey = MaskSecret(b.ApplicationKey)
		masked.B2 = &b
	}
	if cfg.S3 != nil {
		c := *cfg.S3
		c.SecretAccessKey = MaskSecret(c.SecretAccessKey)
		masked.S3 = &c
	}

	return &SettingsView{BackupSettings: *st, StorageConfig: masked}, nil
}

// Save replaces the settings row. Masked secrets in the submitted storage
// config are swapped back for the stored values, so a client can round-trip
// the masked view without knowing the secrets. The next scheduled run time
// is recomputed from the new schedule.
func (s *SettingsService) Save(ctx context.Context, st *model.BackupSettings, cfg *storage.Config) (*model.BackupSettings, error) {
	stored, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	storedCfg, err := s.StorageConfig(ctx, stored)
	if err != nil {
		// A blob sealed under a rotated key is unreadable; sentinel values
		// can no longer be resolved, so require full credentials.
		storedCfg = &storage.Config{}
	}
	mergeSecrets(cfg, storedCfg)

	next, err := NextRunAt(st, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	st.NextRunAt = next

	blob, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal storage config: %w", err)
	}
	enc, err := crypto.Encrypt(blob, s.key)
	if err != nil {
		return nil, fmt.Errorf("seal storage config: %w", err)
	}
	st.StorageConfigEnc = enc

	_, err = s.db.Exec(ctx,
		`INSERT INTO backup_settings (id, hosting_type, storage_type, auto_backup, frequency, backup_time,
		   email_notify, notify_email, backup_database, backup_uploads, keep_backups,
		   storage_config_enc, next_run_at, created_at, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		 ON CONFLICT (id) DO UPDATE SET
		   hosting_type = EXCLUDED.hosting_type,
		   storage_type = EXCLUDED.storage_type,
		   auto_backup = EXCLUDED.auto_backup,
		   frequency = EXCLUDED.frequency,
		   backup_time = EXCLUDED.backup_time,
		   email_notify = EXCLUDED.email_notify,
		   notify_email = EXCLUDED.notify_email,
		   backup_database = EXCLUDED.backup_database,
		   backup_uploads = EXCLUDED.backup_uploads,
		   keep_backups = EXCLUDED.keep_backups,
		   storage_config_enc = EXCLUDED.storage_config_enc,
		   next_run_at = EXCLUDED.next_run_at,
		   updated_at = now()`,
		st.HostingType, st.StorageType, st.AutoBackup, st.Frequency, st.BackupTime,
		st.EmailNotify, st.NotifyEmail, st.BackupDatabase, st.BackupUploads, st.KeepBackups,
		st.StorageConfigEnc, st.NextRunAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save backup settings: %w", err)
	}

	return st, nil
}

// ClaimDueRun advances next_run_at past now if the schedule is due, using the
// old value as a compare-and-swap guard so concurrent workers claim at most
// once. It reports whether this caller won the claim.
func (s *SettingsService) ClaimDueRun(ctx context.Context, now time.Time) (bool, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	if !st.AutoBackup || st.NextRunAt == nil || st.NextRunAt.After(now) {
		return false, nil
	}

	next, err := NextRunAt(st, now)
	if err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE backup_settings SET next_run_at = $1, updated_at = now()
		 WHERE id = 1 AND auto_backup AND next_run_at = $2`,
		next, *st.NextRunAt,
	)
	if err != nil {
		return false, fmt.Errorf("claim scheduled run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// NextRunAt computes the first scheduled run strictly after now, or nil when
// automatic backups are disabled.
func NextRunAt(st *model.BackupSettings, now time.Time) (*time.Time, error) {
	if !st.AutoBackup {
		return nil, nil
	}

	t, err := time.Parse("15:04", st.BackupTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackupTime, st.BackupTime)
	}

	expr := fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
	if st.Frequency == model.FrequencyWeekly {
		expr = fmt.Sprintf("%d %d * * 0", t.Minute(), t.Hour())
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	next := schedule.Next(now)
	return &next, nil
}

// ResolveSubmittedConfig swaps masked placeholders in a submitted config for
// the stored secrets, for callers that validate credentials before saving.
func (s *SettingsService) ResolveSubmittedConfig(ctx context.Context, cfg *storage.Config) error {
	stored, err := s.Get(ctx)
	if err != nil {
		return err
	}
	storedCfg, err := s.StorageConfig(ctx, stored)
	if err != nil {
		return err
	}
	mergeSecrets(cfg, storedCfg)
	return nil
}

// MaskSecret renders a secret as the sentinel plus at most its last four
// characters. Short secrets mask entirely.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return SecretSentinel
	}
	return SecretSentinel + secret[len(secret)-4:]
}

// IsMaskedSecret reports whether a submitted value is a masked placeholder
// rather than a new secret.
func IsMaskedSecret(secret string) bool {
	return strings.HasPrefix(secret, SecretSentinel)
}

// mergeSecrets replaces masked placeholders in the submitted config with the
// stored secrets they stand for.
func mergeSecrets(submitted, stored *storage.Config) {
	if submitted.Drive != nil && IsMaskedSecret(submitted.Drive.PrivateKey) && stored.Drive != nil {
		submitted.Drive.PrivateKey = stored.Drive.PrivateKey
	}
	if submitted.B2 != nil && IsMaskedSecret(submitted.B2.ApplicationKey) && stored.B2 != nil {
		submitted.B2.ApplicationKey = stored.B2.ApplicationKey
	}
	if submitted.S3 != nil && IsMaskedSecret(submitted.S3.SecretAccessKey) && stored.S3 != nil {
		submitted.S3.SecretAccessKey = stored.S3.SecretAccessKey
	}
}
