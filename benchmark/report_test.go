package benchmark

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	rs := NewResultSet("")
	rs.Add(result("fp32", 2))
	rs.Add(result("int8", 0.5))

	files, err := SaveResults(dir, "resnet-mini", rs)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, strings.HasSuffix(files[0], ".json"))
	assert.True(t, strings.HasSuffix(files[1], ".csv"))

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	decoded := NewResultSet("")
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, rs.Labels(), decoded.Labels())

	f, err := os.Open(files[1])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Label", rows[0][0])
	assert.Equal(t, "1.0000", rows[1][8])
	assert.Equal(t, "int8", rows[2][0])
	assert.Equal(t, "4.0000", rows[2][8])
}
