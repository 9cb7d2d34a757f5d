package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDisabledClientFailsFast(t *testing.T) {
	c := NewClient("", nil)
	require.False(t, c.Enabled())

	err := c.CreateEntities(context.Background(),
		[]Entity{{Name: CheckpointName("jwt-auth"), EntityType: "checkpoint"}}, nil)
	require.ErrorIs(t, err, ErrDisabled)

	_, err = c.SearchNodes(context.Background(), CheckpointPrefix)
	require.ErrorIs(t, err, ErrDisabled)

	require.NoError(t, c.Close())
}

func TestCreateEntitiesNothingToWrite(t *testing.T) {
	c := NewClient("", nil)
	require.NoError(t, c.CreateEntities(context.Background(), nil, nil))
}

func TestNaming(t *testing.T) {
	require.Equal(t, "checkpoint:jwt-auth", CheckpointName("jwt-auth"))
	require.Equal(t, "blocker:schema review pending", BlockerName("  schema review pending "))
}

func TestParseToolText(t *testing.T) {
	text, err := parseToolText([]byte(`{"content":[{"type":"text","text":"hello"}]}`))
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	_, err = parseToolText([]byte(`{"content":[{"type":"text","text":"boom"}],"isError":true}`))
	require.Error(t, err)

	_, err = parseToolText([]byte(`not json`))
	require.Error(t, err)
}

func TestParseSearchResult(t *testing.T) {
	payload := `{
		"entities": [
			{"name": "checkpoint:jwt-auth", "entityType": "checkpoint",
			 "observations": ["on feature/PROJ-123_add-auth"]}
		],
		"relations": [
			{"from": "blocker:schema review", "to": "checkpoint:jwt-auth",
			 "relationType": "blocks"}
		]
	}`
	res, err := parseSearchResult(payload)
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	require.Equal(t, "checkpoint:jwt-auth", res.Entities[0].Name)
	require.Len(t, res.Relations, 1)
	require.Equal(t, RelationBlocks, res.Relations[0].RelationType)

	res, err = parseSearchResult("")
	require.NoError(t, err)
	require.Empty(t, res.Entities)
}
