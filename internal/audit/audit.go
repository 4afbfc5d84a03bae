// Package audit is the optional, explicitly-not-engine-truth side channel
// recording the scaler's scale decisions: the
// engine never reads this back — it exists purely for after-the-fact
// operational debugging.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/payperplay/hosting/pkg/logging"
)

// Entry is one audited scale decision. Detail is stored as a
// native jsonb column (gorm.io/datatypes) rather than text, so operators
// can query into it directly from Postgres instead of parsing strings.
type Entry struct {
	ID        string         `gorm:"primaryKey"`
	Timestamp time.Time      `gorm:"index"`
	Group     string         `gorm:"index"`
	Hostname  string
	Kind      string `gorm:"index"` // "scale_action" is the only kind the scaler records
	Detail    datatypes.JSON
}

// Sink persists Entry rows to Postgres via gorm.
type Sink struct {
	db  *gorm.DB
	log *logging.Logger
}

// New opens databaseURL and migrates the audit table. A nil Sink (and nil
// error) is returned when databaseURL is empty — the caller's Record calls
// become no-ops and audit events fall back to the structured logger only.
func New(databaseURL string, log *logging.Logger) (*Sink, error) {
	if databaseURL == "" {
		return nil, nil
	}
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &Sink{db: db, log: log}, nil
}

// Record persists one audit entry. detail is marshaled to JSON; a string
// detail is stored as a JSON string value. A nil Sink (audit disabled) and any database write
// failure both fall back to a structured log line rather than erroring —
// the audit trail is explicitly non-authoritative, so losing an entry must
// never surface as an engine error.
func (s *Sink) Record(group, hostname, kind string, detail any) {
	var raw []byte
	if text, ok := detail.(string); ok {
		raw, _ = json.Marshal(text)
	} else if b, err := json.Marshal(detail); err == nil {
		raw = b
	}

	if s == nil || s.db == nil {
		s.logger().Info("audit", map[string]any{"group": group, "hostname": hostname, "kind": kind, "detail": string(raw)})
		return
	}

	entry := Entry{ID: uuid.NewString(), Timestamp: time.Now(), Group: group, Hostname: hostname, Kind: kind, Detail: datatypes.JSON(raw)}
	if err := s.db.Create(&entry).Error; err != nil {
		s.logger().Warn("audit: write failed, entry dropped", map[string]any{"err": err.Error()})
	}
}

func (s *Sink) logger() *logging.Logger {
	if s != nil && s.log != nil {
		return s.log
	}
	return logging.Default()
}
