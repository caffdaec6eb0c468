package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goshamap/internal/config"
	"github.com/LeJamon/goshamap/internal/crypto/common"
	"github.com/LeJamon/goshamap/internal/log"
	"github.com/LeJamon/goshamap/internal/storage/nodestore"
)

func TestMain(m *testing.M) {
	if err := log.SetupWriter(io.Discard, "error", false, false); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var testBackends = []string{"leveldb", "pebble"}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	c, err := config.LoadConfig("")
	require.NoError(t, err)
	c.NodeDB.Backend = backend
	c.NodeDB.Path = filepath.Join(t.TempDir(), "nodestore")
	c.SHAMap.FlushBatch = 16
	c.Sync.MaxMissing = 8
	return c
}

func testKey(i int) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(i))
	return common.Sha512Half(buf[:])
}

type testEntry struct {
	key  [32]byte
	data string
}

func makeEntries(n int) []testEntry {
	entries := make([]testEntry, n)
	for i := range entries {
		entries[i] = testEntry{key: testKey(i), data: fmt.Sprintf("%04X", i)}
	}
	return entries
}

func writeEntries(t *testing.T, entries []testEntry) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("# test entries\n\n")
	for _, e := range entries {
		fmt.Fprintf(&buf, "%x %s\n", e.key, e.data)
	}
	path := filepath.Join(t.TempDir(), "entries.txt")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// dumpLines lists a stored map the way the dump command prints it.
func dumpLines(t *testing.T, c *config.Config, root [32]byte) []string {
	t.Helper()
	var out bytes.Buffer
	_, err := runDump(c, &out, root, "state", "")
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(out.String()), "\n")
}

func expectedLines(entries []testEntry) []string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%X %s", e.key, e.data)
	}
	sort.Strings(lines)
	return lines
}

func importEntries(t *testing.T, c *config.Config, entries []testEntry) [32]byte {
	t.Helper()
	res, err := runImport(c, writeEntries(t, entries), "state", 7)
	require.NoError(t, err)
	require.Equal(t, len(entries), res.Entries)
	return res.Root
}

func TestImportAndDump(t *testing.T) {
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			c := testConfig(t, backend)
			entries := makeEntries(200)

			res, err := runImport(c, writeEntries(t, entries), "state", 7)
			require.NoError(t, err)
			assert.Equal(t, 200, res.Entries)
			assert.Greater(t, res.Nodes, 200)
			assert.NotEqual(t, [32]byte{}, res.Root)

			assert.Equal(t, expectedLines(entries), dumpLines(t, c, res.Root))

			// A JSON dump imports back to the same root in another store.
			jsonPath := filepath.Join(t.TempDir(), "dump.json")
			n, err := runDump(c, io.Discard, res.Root, "state", jsonPath)
			require.NoError(t, err)
			assert.Equal(t, 200, n)

			other := testConfig(t, backend)
			again, err := runImport(other, jsonPath, "state", 0)
			require.NoError(t, err)
			assert.Equal(t, res.Root, again.Root)
		})
	}
}

func TestImportIsOrderIndependent(t *testing.T) {
	c := testConfig(t, "leveldb")
	entries := makeEntries(50)
	root := importEntries(t, c, entries)

	reversed := make([]testEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	assert.Equal(t, root, importEntries(t, testConfig(t, "leveldb"), reversed))
}

func TestImportRejects(t *testing.T) {
	c := testConfig(t, "leveldb")
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	_, err := runImport(c, write("fields.txt", "00 01 02\n"), "state", 0)
	assert.ErrorContains(t, err, "fields.txt:1")

	_, err = runImport(c, write("short.txt", "0011 22\n"), "state", 0)
	assert.ErrorContains(t, err, "expected 32 bytes")

	key := fmt.Sprintf("%x", testKey(1))
	_, err = runImport(c, write("data.txt", key+" zz\n"), "state", 0)
	assert.ErrorContains(t, err, "invalid data")

	_, err = runImport(c, write("ok.txt", key+" 00\n"), "ledger", 0)
	assert.ErrorContains(t, err, "unknown map type")

	_, err = runImport(c, filepath.Join(dir, "absent.txt"), "state", 0)
	assert.Error(t, err)
}

func TestImportTransactionMap(t *testing.T) {
	c := testConfig(t, "pebble")
	res, err := runImport(c, writeEntries(t, makeEntries(20)), "tx", 3)
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := runDump(c, &out, res.Root, "tx", "")
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestDumpUnknownRoot(t *testing.T) {
	c := testConfig(t, "leveldb")
	importEntries(t, c, makeEntries(5))

	_, err := runDump(c, io.Discard, testKey(999), "state", "")
	assert.ErrorContains(t, err, "not found")
}

func TestDiff(t *testing.T) {
	c := testConfig(t, "leveldb")
	base := makeEntries(100)
	rootA := importEntries(t, c, base)

	// Drop entries 0 and 1, change entry 2, add three new ones.
	changed := append([]testEntry(nil), base[2:]...)
	changed[0].data = "FFFF"
	for i := 100; i < 103; i++ {
		changed = append(changed, testEntry{key: testKey(i), data: "AA"})
	}
	rootB := importEntries(t, c, changed)

	report, err := runDiff(c, rootA, rootB, "state", 1000)
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Len(t, report.Added, 3)
	assert.Len(t, report.Removed, 2)
	require.Len(t, report.Modified, 1)
	assert.Equal(t, fmt.Sprintf("%X", base[2].key), report.Modified[0].Index)
	assert.Equal(t, base[2].data, report.Modified[0].Old)
	assert.Equal(t, "FFFF", report.Modified[0].New)
	assert.True(t, sort.SliceIsSorted(report.Added, func(i, j int) bool {
		return report.Added[i].Index < report.Added[j].Index
	}))

	var out bytes.Buffer
	printDiffReport(&out, rootA, rootB, report)
	assert.Contains(t, out.String(), "Added:    3 entries")
	assert.Contains(t, out.String(), "Removed:  2 entries")

	jsonPath := filepath.Join(t.TempDir(), "diff.json")
	require.NoError(t, writeDiffJSON(jsonPath, report))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"modified"`)

	same, err := runDiff(c, rootA, rootA, "state", 1000)
	require.NoError(t, err)
	assert.False(t, same.differs())

	partial, err := runDiff(c, rootA, rootB, "state", 2)
	require.NoError(t, err)
	assert.False(t, partial.Complete)
}

func TestSyncFromSource(t *testing.T) {
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			src := testConfig(t, backend)
			entries := makeEntries(300)
			root := importEntries(t, src, entries)

			dst := testConfig(t, backend)
			stats, err := runSync(context.Background(), dst, root, syncOptions{
				mapType: "state",
				source:  src.NodeDB.Path,
			})
			require.NoError(t, err)
			assert.Greater(t, stats.Rounds, 1)
			assert.Greater(t, stats.Result.Good, 300)
			assert.Zero(t, stats.Result.Bad)

			assert.Equal(t, expectedLines(entries), dumpLines(t, dst, root))

			// Everything is local now; no source is needed.
			again, err := runSync(context.Background(), dst, root, syncOptions{mapType: "state"})
			require.NoError(t, err)
			assert.Zero(t, again.Rounds)
		})
	}
}

func TestSyncIncremental(t *testing.T) {
	src := testConfig(t, "leveldb")
	base := makeEntries(150)
	rootA := importEntries(t, src, base)
	next := append(append([]testEntry(nil), base...), testEntry{key: testKey(500), data: "BEEF"})
	rootB := importEntries(t, src, next)

	dst := testConfig(t, "leveldb")
	first, err := runSync(context.Background(), dst, rootA, syncOptions{mapType: "state", source: src.NodeDB.Path})
	require.NoError(t, err)

	// Only the path to the new leaf differs from the map already held.
	second, err := runSync(context.Background(), dst, rootB, syncOptions{mapType: "state", source: src.NodeDB.Path})
	require.NoError(t, err)
	assert.Less(t, second.Result.Good, first.Result.Good/4)
	assert.Equal(t, expectedLines(next), dumpLines(t, dst, rootB))
}

func TestSyncRequiresSource(t *testing.T) {
	src := testConfig(t, "leveldb")
	root := importEntries(t, src, makeEntries(10))

	_, err := runSync(context.Background(), testConfig(t, "leveldb"), root, syncOptions{mapType: "state"})
	assert.ErrorContains(t, err, "no source given")
}

func TestSyncCancelled(t *testing.T) {
	src := testConfig(t, "leveldb")
	root := importEntries(t, src, makeEntries(100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runSync(ctx, testConfig(t, "leveldb"), root, syncOptions{mapType: "state", source: src.NodeDB.Path})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchPackSync(t *testing.T) {
	src := testConfig(t, "pebble")
	base := makeEntries(120)
	rootA := importEntries(t, src, base)

	packPath := filepath.Join(t.TempDir(), "full.pack")
	n, err := runFetchPack(src, rootA, nil, packOptions{mapType: "state", out: packPath, leaves: true})
	require.NoError(t, err)
	assert.Greater(t, n, 120)

	dst := testConfig(t, "pebble")
	stats, err := runSync(context.Background(), dst, rootA, syncOptions{mapType: "state", pack: packPath})
	require.NoError(t, err)
	assert.Zero(t, stats.Rounds)
	assert.Equal(t, expectedLines(base), dumpLines(t, dst, rootA))

	// A pack relative to rootA carries only what changed.
	next := append(append([]testEntry(nil), base[1:]...), testEntry{key: testKey(900), data: "01"})
	rootB := importEntries(t, src, next)
	deltaPath := filepath.Join(t.TempDir(), "delta.pack")
	deltaCount, err := runFetchPack(src, rootB, &rootA, packOptions{mapType: "state", out: deltaPath, leaves: true})
	require.NoError(t, err)
	assert.Less(t, deltaCount, n/4)

	_, err = runSync(context.Background(), dst, rootB, syncOptions{mapType: "state", pack: deltaPath})
	require.NoError(t, err)
	assert.Equal(t, expectedLines(next), dumpLines(t, dst, rootB))
}

func TestFetchPackWithoutLeaves(t *testing.T) {
	src := testConfig(t, "leveldb")
	root := importEntries(t, src, makeEntries(60))

	packPath := filepath.Join(t.TempDir(), "inner.pack")
	_, err := runFetchPack(src, root, nil, packOptions{mapType: "state", out: packPath})
	require.NoError(t, err)

	// Inner nodes alone leave every leaf missing.
	_, err = runSync(context.Background(), testConfig(t, "leveldb"), root, syncOptions{mapType: "state", pack: packPath})
	assert.ErrorContains(t, err, "nodes missing")

	// The source fills in the rest.
	dst := testConfig(t, "leveldb")
	stats, err := runSync(context.Background(), dst, root, syncOptions{mapType: "state", pack: packPath, source: src.NodeDB.Path})
	require.NoError(t, err)
	assert.Positive(t, stats.Rounds)
}

func TestVerify(t *testing.T) {
	c := testConfig(t, "leveldb")
	root := importEntries(t, c, makeEntries(80))

	var out bytes.Buffer
	require.NoError(t, runVerify(c, &out, verifyOptions{mapType: "state", root: fmt.Sprintf("%X", root)}))
	assert.Contains(t, out.String(), "Verification Result: VALID")
	assert.Contains(t, out.String(), "structure OK")

	db, err := nodestore.Open(&c.NodeDB)
	require.NoError(t, err)
	bogus := testKey(12345)
	require.NoError(t, db.Store(context.Background(), &nodestore.Node{
		Type: nodestore.NodeAccount,
		Hash: bogus,
		Data: []byte("not the preimage"),
	}))
	require.NoError(t, db.Close())

	out.Reset()
	err = runVerify(c, &out, verifyOptions{mapType: "state"})
	assert.ErrorIs(t, err, errVerifyFailed)
	assert.Contains(t, out.String(), "CORRUPT")
	assert.Contains(t, out.String(), fmt.Sprintf("%X", bogus))
}

func TestParseHash(t *testing.T) {
	key := testKey(3)
	for _, s := range []string{
		fmt.Sprintf("%x", key),
		fmt.Sprintf("%X", key),
		fmt.Sprintf("0x%x", key),
	} {
		got, err := parseHash(s)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}

	_, err := parseHash("abcd")
	assert.Error(t, err)
	_, err = parseHash(strings.Repeat("g", 64))
	assert.Error(t, err)
}
