package conf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_KEY", "secret")
	t.Setenv("JUDGE_REQ_QUEUE_URL", "https://sqs/req")
	t.Setenv("JUDGE_RESP_QUEUE_URL", "https://sqs/resp")
	t.Setenv("EVIDENCE_BUCKET", "proctor-evidence")
}

func TestFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("EXAM_CACHE_TTL", "30s")
	t.Setenv("CORS_ORIGINS", "https://olimp.lv, http://localhost:3000,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), cfg.JwtKey)
	assert.Equal(t, 30*time.Second, cfg.ExamCacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.JudgeTimeout)
	assert.Equal(t, []string{"https://olimp.lv", "http://localhost:3000"}, cfg.CorsOrigins)
}

func TestFromEnv_MissingAndInvalid(t *testing.T) {
	setRequired(t)
	t.Setenv("EVIDENCE_BUCKET", "")
	_, err := FromEnv()
	require.ErrorContains(t, err, "EVIDENCE_BUCKET")

	setRequired(t)
	t.Setenv("JUDGE_TIMEOUT", "soon")
	_, err = FromEnv()
	require.ErrorContains(t, err, "JUDGE_TIMEOUT")
}

type fakeSecrets struct {
	value *string
	err   error
}

func (f fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestGetSecret(t *testing.T) {
	got, err := getSecret(context.Background(), fakeSecrets{value: aws.String(`{"password":"pw"}`)}, "pg")
	require.NoError(t, err)
	assert.Equal(t, `{"password":"pw"}`, got)

	_, err = getSecret(context.Background(), fakeSecrets{}, "pg")
	require.Error(t, err)

	_, err = getSecret(context.Background(), fakeSecrets{err: errors.New("denied")}, "pg")
	require.ErrorContains(t, err, "denied")
}

func TestPgConnStr_Local(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_PW", "pw")
	t.Setenv("POSTGRES_USER", "proctor")
	t.Setenv("POSTGRES_DB", "proctor")
	t.Setenv("POSTGRES_PORT", "")

	s, err := PgConnStr(context.Background(), aws.Config{})
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=proctor password=pw dbname=proctor sslmode=disable", s)
}
