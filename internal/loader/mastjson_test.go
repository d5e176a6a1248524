package loader_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/diagnostics"
	"github.com/arclang/arc/internal/loader"
	"github.com/arclang/arc/internal/vm"
)

const mastSource = `
func twice(x) { return x * 2 }
func shout(s) { return s + "!" }
impl Fmt for Point {
	func show(self) { return f"({self.x}, {self.y})" }
}
`

func exportDoc(t *testing.T) []byte {
	t.Helper()
	prog, err := vm.Parse(mastSource)
	require.NoError(t, err)
	data, err := loader.ExportMast(prog)
	require.NoError(t, err)
	return data
}

func TestMastExportLoadRoundtrip(t *testing.T) {
	data := exportDoc(t)
	doc, err := loader.LoadMast(data)
	require.NoError(t, err)
	require.Len(t, doc.Functions, 3)

	names := make([]string, 0, 3)
	for _, fn := range doc.Functions {
		names = append(names, fn.Name)
		require.Len(t, fn.Hash, 64)
	}
	require.Contains(t, names, "twice")
	require.Contains(t, names, "shout")
	require.Contains(t, names, "Point.show")
}

func TestMastLoadDetectsTampering(t *testing.T) {
	data := exportDoc(t)
	// Flip the multiplication constant inside the first function body.
	tampered := bytes.Replace(data, []byte(`"i": 2`), []byte(`"i": 3`), 1)
	require.NotEqual(t, data, tampered)

	_, err := loader.LoadMast(tampered)
	require.Error(t, err)
	de, ok := err.(*diagnostics.Error)
	require.True(t, ok, "expected IntegrityError, got %T: %v", err, err)
	require.Equal(t, diagnostics.IntegrityError, de.Code)
}

func TestMastLoadAcceptsReorderedKeys(t *testing.T) {
	// Shuffle key order inside the document: hashes verify against the
	// canonical re-encoding, not the raw bytes.
	data := exportDoc(t)
	var doc loader.MastDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	for i, fn := range doc.Functions {
		var tree map[string]interface{}
		require.NoError(t, json.Unmarshal(fn.Content, &tree))
		shuffled, err := json.Marshal(tree) // map marshal sorts keys alphabetically
		require.NoError(t, err)
		doc.Functions[i].Content = shuffled
	}
	reserialized, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = loader.LoadMast(reserialized)
	require.NoError(t, err)
}

func TestMastLoadRejectsUnknownVersion(t *testing.T) {
	var doc loader.MastDocument
	require.NoError(t, json.Unmarshal(exportDoc(t), &doc))
	doc.Version = 99
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = loader.LoadMast(raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "version")
}
