// Package evidence archives what a reviewer needs to decide an appeal:
// the answers frozen at disqualification and the violation that caused
// it. Bundles are stored as zstd-compressed JSON.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/violation"
)

const mediaType = "application/zstd"

type Bundle struct {
	AppealUUID  uuid.UUID `json:"appeal_uuid"`
	AttemptUUID uuid.UUID `json:"attempt_uuid"`
	ExamID      string    `json:"exam_id"`
	UserUUID    uuid.UUID `json:"user_uuid"`

	DisqualifiedReason string                   `json:"disqualified_reason"`
	DisqualifiedAt     *time.Time               `json:"disqualified_at"`
	Answers            []attempt.AnswerSnapshot `json:"answers"`
	Violation          violation.Violation      `json:"violation"`

	AppealReason   string    `json:"appeal_reason"`
	AppealEvidence string    `json:"appeal_evidence"`
	ArchivedAt     time.Time `json:"archived_at"`
}

func NewBundle(appealUUID uuid.UUID, a attempt.Attempt, v violation.Violation, reason, evidence string, now time.Time) Bundle {
	b := Bundle{
		AppealUUID:     appealUUID,
		AttemptUUID:    a.UUID,
		ExamID:         a.ExamID,
		UserUUID:       a.UserUUID,
		DisqualifiedAt: a.DisqualifiedAt,
		Answers:        a.DisqualificationSnapshot,
		Violation:      v,
		AppealReason:   reason,
		AppealEvidence: evidence,
		ArchivedAt:     now,
	}
	if a.DisqualifiedReason != nil {
		b.DisqualifiedReason = *a.DisqualifiedReason
	}
	return b
}

type Store interface {
	Upload(ctx context.Context, content []byte, key string, mediaType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}

type Archive struct {
	store Store
}

func NewArchive(store Store) *Archive {
	return &Archive{store: store}
}

func Key(examID string, appealUUID uuid.UUID) string {
	return fmt.Sprintf("appeals/%s/%s.json.zst", examID, appealUUID)
}

// Save stores the bundle and returns its archive key.
func (ar *Archive) Save(ctx context.Context, b Bundle) (string, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal evidence: %w", err)
	}
	compressed, err := compressWithZstd(body)
	if err != nil {
		return "", err
	}
	key := Key(b.ExamID, b.AppealUUID)
	if err := ar.store.Upload(ctx, compressed, key, mediaType); err != nil {
		return "", fmt.Errorf("failed to upload evidence: %w", err)
	}
	return key, nil
}

func (ar *Archive) Load(ctx context.Context, key string) (Bundle, error) {
	compressed, err := ar.store.Download(ctx, key)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to download evidence: %w", err)
	}
	body, err := decompressZstd(compressed)
	if err != nil {
		return Bundle{}, err
	}
	var b Bundle
	if err := json.Unmarshal(body, &b); err != nil {
		return Bundle{}, fmt.Errorf("failed to unmarshal evidence: %w", err)
	}
	return b, nil
}

func compressWithZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()
	res, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress evidence: %w", err)
	}
	return res, nil
}
