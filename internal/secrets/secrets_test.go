package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/trackid-go/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("TRACKID_TEST_TOKEN", "abc123")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty", input: "", want: ""},
		{name: "literal", input: "literal-value", want: "literal-value"},
		{name: "bare dollar kept", input: "pa$$word", want: "pa$$word"},
		{name: "reference", input: "${TRACKID_TEST_TOKEN}", want: "abc123"},
		{name: "prefix and suffix", input: "Bearer ${TRACKID_TEST_TOKEN}!", want: "Bearer abc123!"},
		{name: "fallback unused", input: "${TRACKID_TEST_TOKEN:-x}", want: "abc123"},
		{name: "fallback used", input: "${TRACKID_TEST_UNSET:-x}", want: "x"},
		{name: "empty fallback", input: "${TRACKID_TEST_UNSET:-}", want: ""},
		{name: "missing", input: "${TRACKID_TEST_UNSET}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "TRACKID_TEST_UNSET")
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	require.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)

	_, err = ReadFile(dir)
	require.Error(t, err)

	_, err = ReadFile("")
	require.Error(t, err)
}

func TestResolveAll(t *testing.T) {
	t.Setenv("TRACKID_TEST_PASSWORD", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	literal := "plain"
	env := "${TRACKID_TEST_PASSWORD}"
	file := FilePrefix + path
	empty := ""

	require.NoError(t, ResolveAll(map[string]*string{
		"a": &literal,
		"b": &env,
		"c": &file,
		"d": &empty,
		"e": nil,
	}))
	assert.Equal(t, "plain", literal)
	assert.Equal(t, "from-env", env)
	assert.Equal(t, "from-file", file)
	assert.Empty(t, empty)

	bad := "${TRACKID_TEST_UNSET}"
	err := ResolveAll(map[string]*string{"mqtt.password": &bad})
	require.Error(t, err)
	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "mqtt.password", ee.GetContext()["setting"])
}
