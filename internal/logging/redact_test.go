package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newRedactingTestEncoder(t *testing.T, cfg RedactionConfig) *RedactingEncoder {
	t.Helper()
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, cfg)
	require.NoError(t, err)
	return enc
}

func encodeToString(t *testing.T, enc zapcore.Encoder, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "msg"}, fields)
	require.NoError(t, err)
	return buf.String()
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	enc := newRedactingTestEncoder(t, RedactionConfig{
		Enabled: true,
		Fields:  []string{"password", "api_key"},
	})

	out := encodeToString(t, enc,
		zap.String("password", "hunter2"),
		zap.String("API_KEY", "sk-12345"),
		zap.String("username", "frodo"),
	)

	assert.Contains(t, out, `"password":"[REDACTED]"`)
	assert.Contains(t, out, `"API_KEY":"[REDACTED]"`)
	assert.Contains(t, out, `"username":"frodo"`)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "sk-12345")
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	enc := newRedactingTestEncoder(t, RedactionConfig{
		Enabled:  true,
		Patterns: []string{`(?i)bearer\s+\S+`},
	})

	out := encodeToString(t, enc,
		zap.String("header", "Bearer abc.def.ghi"),
		zap.String("note", "no secrets here"),
	)

	assert.Contains(t, out, `"header":"[REDACTED:pattern]"`)
	assert.Contains(t, out, `"note":"no secrets here"`)
	assert.NotContains(t, out, "abc.def.ghi")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc := newRedactingTestEncoder(t, RedactionConfig{Enabled: false})

	out := encodeToString(t, enc, zap.String("password", "plaintext"))
	assert.Contains(t, out, "plaintext")
}

func TestRedactingEncoder_NonStringTypes(t *testing.T) {
	enc := newRedactingTestEncoder(t, RedactionConfig{
		Enabled: true,
		Fields:  []string{"token"},
	})

	out := encodeToString(t, enc,
		zap.ByteString("token", []byte("raw-bytes")),
		zap.Strings("token_list", []string{"a", "b"}),
	)

	assert.Contains(t, out, `"token":"[REDACTED]"`)
	assert.NotContains(t, out, "raw-bytes")
	// token_list contains "token" as prefix but is not in the field set
	assert.Contains(t, out, `"token_list":["a","b"]`)
}

func TestRedactingEncoder_ArrayAndObjectKeys(t *testing.T) {
	enc := newRedactingTestEncoder(t, RedactionConfig{
		Enabled: true,
		Fields:  []string{"credentials"},
	})

	out := encodeToString(t, enc,
		zap.Strings("credentials", []string{"u", "p"}),
	)

	assert.Contains(t, out, `"credentials":"[REDACTED]"`)
	assert.NotContains(t, out, `["u","p"]`)
}

func TestRedactingEncoder_Clone(t *testing.T) {
	enc := newRedactingTestEncoder(t, RedactionConfig{
		Enabled: true,
		Fields:  []string{"secret"},
	})

	clone := enc.Clone()
	out := encodeToString(t, clone, zap.String("secret", "v"))
	assert.Contains(t, out, "[REDACTED]")
}

func TestNewRedactingEncoder_InvalidPattern(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	_, err := NewRedactingEncoder(base, RedactionConfig{
		Enabled:  true,
		Patterns: []string{"[bad"},
	})
	require.Error(t, err)
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("authorization", "Bearer tok_123")
	assert.Equal(t, "authorization", f.Key)
	assert.Equal(t, "[REDACTED:14]", f.String)
}

func TestTestLogger_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "clean message", zap.String("path", "/tmp/db"))
	tl.AssertNoSecrets(t)

	tl.Info(ctx, "redacted", RedactedString("token", "tok_value"))
	tl.AssertNoSecrets(t)
}
