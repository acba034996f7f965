package evidence_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/attempt"
	"github.com/programme-lv/proctor/evidence"
	"github.com/programme-lv/proctor/violation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	a := attempt.New("olymp-r1", uuid.New(), uuid.New(), now)
	reason := "tab switch limit exceeded: 4 occurrences, 3 allowed"
	a.DisqualifiedReason = &reason
	a.DisqualifiedAt = &now
	a.DisqualificationSnapshot = []attempt.AnswerSnapshot{
		{SectionID: "quiz", QuestionID: "q1", Payload: json.RawMessage(`"b"`), TimeSpentSec: 30},
	}
	v := violation.New(a.UUID, "tab_switch", now)
	v.Count = 4
	v.Action = violation.ActionDisqualified

	store := evidence.NewInMemStore()
	archive := evidence.NewArchive(store)
	appealUUID := uuid.New()
	key, err := archive.Save(context.Background(),
		evidence.NewBundle(appealUUID, a, v, "my cat walked over the keyboard", "", now))
	require.NoError(t, err)
	assert.Equal(t, evidence.Key("olymp-r1", appealUUID), key)
	assert.Equal(t, []string{key}, store.Keys())

	raw, err := store.Download(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4], "zstd frame magic")

	got, err := archive.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, reason, got.DisqualifiedReason)
	assert.Equal(t, 4, got.Violation.Count)
	require.Len(t, got.Answers, 1)
	assert.JSONEq(t, `"b"`, string(got.Answers[0].Payload))
	assert.Equal(t, "my cat walked over the keyboard", got.AppealReason)

	_, err = archive.Load(context.Background(), "appeals/missing")
	require.Error(t, err)
}
