package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

const sampleFlow = `
id: sync-users
name: Sync users into the CRM
nodes:
  - id: fetch
    type: http
    config:
      method: GET
      endpoint: https://api.example.com/users
      fail_on_error: false
  - id: iterate
    type: loop
    config:
      loop_type: forEach
      array_path: fetch.result.body.users
      batch_size: "10"
      nodes:
        - id: upsert
          type: http
          config:
            method: POST
            endpoint: /contacts
            connector: crm
            body:
              name: "{{loop.item.name}}"
  - id: done
    type: log
    config:
      message: "synced {{fetch.result.body.users.length}} users"
`

func TestParseYAMLFlow(t *testing.T) {
	flow, err := Parse([]byte(sampleFlow))
	require.NoError(t, err)

	assert.Equal(t, "sync-users", flow.ID)
	require.Len(t, flow.Nodes, 3)

	fetch, ok := flow.Nodes[0].Config.(*models.HTTPConfig)
	require.True(t, ok)
	assert.False(t, fetch.Aborts())

	loop, ok := flow.Nodes[1].Config.(*models.LoopConfig)
	require.True(t, ok)
	assert.Equal(t, models.LoopTypeForEach, loop.LoopType)
	require.Len(t, loop.Nodes, 1)

	upsert, ok := loop.Nodes[0].Config.(*models.HTTPConfig)
	require.True(t, ok)
	assert.Equal(t, "crm", upsert.ConnectorID)
	body, ok := upsert.Body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "{{loop.item.name}}", body["name"])
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("nodes: [unclosed"))
	assert.Error(t, err)
}

func TestParseRejectsInvalidFlow(t *testing.T) {
	_, err := Parse([]byte(`
id: bad-flow
nodes:
  - id: a
    type: log
    config:
      message: one
  - id: a
    type: log
    config:
      message: two
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node ID")
}

func TestParseRejectsUnknownNodeType(t *testing.T) {
	_, err := Parse([]byte(`
id: bad-flow
nodes:
  - id: a
    type: teleport
    config: {}
`))
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFlow), 0o600))

	flow, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sync-users", flow.ID)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
