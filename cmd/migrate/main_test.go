package main

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"path/filepath"
	"testing"
)

func TestCreateCommand(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"create", "add_product_index", "--dir", dir})

	require.NoError(t, cmd.Execute())

	files, err := filepath.Glob(filepath.Join(dir, "*_add_product_index.*.sql"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, out.String(), ".up.sql")
}

func TestDownRejectsBadSteps(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"down", "0"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "positive integer")
}

func TestLedgerAuditNeedsNumericID(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ledger-audit", "abc"})

	assert.ErrorContains(t, cmd.Execute(), "order_id")
}
