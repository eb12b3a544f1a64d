package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
)

// scoreByTitle answers relevance prompts with a fixed score per node title;
// unknown titles score 0.
func scoreByTitle(scores map[string]float64) func(map[string]string) (string, error) {
	return func(vars map[string]string) (string, error) {
		out, err := json.Marshal(map[string]any{"score": scores[vars["title"]], "reason": "scripted"})
		return string(out), err
	}
}

// ingestRayleigh builds tree "kb" with folder root-notes holding the
// Rayleigh document and returns the folder and document ids.
func ingestRayleigh(t *testing.T, env *testEnv) (string, string) {
	t.Helper()
	folderID := newNotesTree(t, env)
	res, err := env.ingestion.IngestDocument(context.Background(), driving.IngestRequest{
		TreeID:   "kb",
		FolderID: folderID,
		Title:    "Rayleigh Scattering",
		Gist:     "Why the sky is blue.",
		Text:     rayleighText,
	})
	require.NoError(t, err)
	return folderID, res.Node.ID
}

func assertUnique(t *testing.T, ids []string) {
	t.Helper()
	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "visited %s twice", id)
		seen[id] = true
	}
}

func TestRetrieve_FindsIngestedDocument(t *testing.T) {
	env := newTestEnv(t)
	_, docID := ingestRayleigh(t, env)
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 9}))
	env.oracle.reply(driven.PromptMapScan, `{"nodeIds": []}`)
	env.oracle.reply(driven.PromptBranch, `{"selected": []}`)

	res, err := env.navigator.Retrieve(context.Background(), "kb", "Why is the sky blue?", domain.RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	got := res.Results[0]
	assert.Equal(t, docID, got.NodeID)
	assert.InDelta(t, 9.0, got.Score, 1e-9)
	assert.Equal(t, rayleighText, got.Content)
	assert.Contains(t, res.Trail, docID)
	assertUnique(t, res.Trail)
}

func TestRetrieve_VisitsEachNodeOnce(t *testing.T) {
	env := newTestEnv(t)
	folderID, docID := ingestRayleigh(t, env)
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 9}))
	env.oracle.reply(driven.PromptMapScan, `{"nodeIds": ["`+docID+`", "`+folderID+`", "`+docID+`", "ghost"]}`)
	env.oracle.reply(driven.PromptBranch, `{"selected": ["`+docID+`"]}`)

	res, err := env.navigator.Retrieve(context.Background(), "kb", "sky blue", domain.RetrieveOptions{})
	require.NoError(t, err)
	assertUnique(t, res.Trail)

	scored := env.oracle.relevanceCalls()
	assertUnique(t, scored)
	assert.Contains(t, scored, "Rayleigh Scattering")
	assert.Contains(t, scored, "root-notes")
}

func TestRetrieve_SingleChildDescent(t *testing.T) {
	env := newTestEnv(t)
	_, docID := ingestRayleigh(t, env)
	env.embedder.fail = errors.New("offline")
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 8}))
	env.oracle.reply(driven.PromptBranch, `{"selected": []}`)

	res, err := env.navigator.Retrieve(context.Background(), "kb", "sky", domain.RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, docID, res.Results[0].NodeID)

	// The root is entered but not scored.
	assert.Equal(t, "kb-root", res.Trail[0])
	assert.NotContains(t, env.oracle.relevanceCalls(), "Knowledge")
}

func TestRetrieve_ForceRootScoring(t *testing.T) {
	env := newTestEnv(t)
	ingestRayleigh(t, env)
	env.embedder.fail = errors.New("offline")
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Knowledge": 7}))
	env.oracle.reply(driven.PromptBranch, `{"selected": []}`)

	res, err := env.navigator.Retrieve(context.Background(), "kb", "sky", domain.RetrieveOptions{ForceRootScoring: true})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "kb-root", res.Results[0].NodeID)
}

func TestRetrieve_BranchSelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tree, err := env.trees.CreateTree(ctx, driving.CreateTreeRequest{
		ID: "kb", Name: "Knowledge", OrganizingPrinciple: "by topic",
		Seeds: []driving.SeedFolder{{Title: "Physics"}, {Title: "Cooking"}},
	})
	require.NoError(t, err)
	folders, err := env.stores.Trees.Children(ctx, tree.ID, tree.RootNodeID)
	require.NoError(t, err)
	physics, cooking := folders[0], folders[1]
	for _, f := range []struct{ folder, title string }{{physics.ID, "Optics"}, {cooking.ID, "Bread"}} {
		_, err := env.ingestion.IngestDocument(ctx, driving.IngestRequest{
			TreeID: "kb", FolderID: f.folder, Title: f.title, Gist: f.title + " notes", Text: f.title + " body",
		})
		require.NoError(t, err)
	}

	env.embedder.fail = errors.New("offline")
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Optics": 10, "Bread": 10}))
	env.oracle.reply(driven.PromptBranch, `{"selected": ["`+physics.ID+`"]}`)

	res, err := env.navigator.Retrieve(ctx, "kb", "lenses", domain.RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Optics", res.Results[0].Title)
	assert.NotContains(t, res.Trail, cooking.ID)

	env.oracle.mu.Lock()
	defer env.oracle.mu.Unlock()
	var phases []string
	for _, c := range env.oracle.calls {
		if c.prompt == driven.PromptBranch {
			phases = append(phases, c.vars["phase"])
		}
	}
	require.NotEmpty(t, phases)
	assert.Equal(t, "orientation", phases[0])
	assert.Contains(t, phases, "targeting")
}

func TestRetrieve_MaxDepth(t *testing.T) {
	env := newTestEnv(t)
	ingestRayleigh(t, env)
	env.embedder.fail = errors.New("offline")
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 9}))
	env.oracle.reply(driven.PromptBranch, `{"selected": []}`)

	res, err := env.navigator.Retrieve(context.Background(), "kb", "sky", domain.RetrieveOptions{MaxDepth: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Len(t, res.Trail, 2)
}

func TestRetrieve_ThresholdIsInclusive(t *testing.T) {
	for _, tt := range []struct {
		score float64
		found bool
	}{{7, true}, {6.9, false}} {
		env := newTestEnv(t)
		ingestRayleigh(t, env)
		env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": tt.score}))
		env.oracle.reply(driven.PromptMapScan, `{"nodeIds": []}`)
		env.oracle.reply(driven.PromptBranch, `{"selected": []}`)

		res, err := env.navigator.Retrieve(context.Background(), "kb", "why is the sky blue", domain.RetrieveOptions{})
		require.NoError(t, err)
		assert.Equal(t, tt.found, len(res.Results) == 1, "score %v", tt.score)
	}
}

func TestNavigator_UpdateSettingsAppliesToNextQuery(t *testing.T) {
	env := newTestEnv(t)
	ingestRayleigh(t, env)
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 8}))
	env.oracle.reply(driven.PromptMapScan, `{"nodeIds": []}`)
	env.oracle.reply(driven.PromptBranch, `{"selected": []}`)
	ctx := context.Background()

	res, err := env.navigator.Retrieve(ctx, "kb", "why is the sky blue", domain.RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	stricter := domain.DefaultSettings().Retrieval
	stricter.RelevanceThresh = 9
	env.navigator.UpdateSettings(stricter)

	res, err = env.navigator.Retrieve(ctx, "kb", "why is the sky blue", domain.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}

func TestRetrieve_Resolution(t *testing.T) {
	env := newTestEnv(t)
	ingestRayleigh(t, env)
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 9}))
	env.oracle.reply(driven.PromptMapScan, `{"nodeIds": []}`)
	env.oracle.reply(driven.PromptBranch, `{"selected": []}`)
	ctx := context.Background()

	res, err := env.navigator.Retrieve(ctx, "kb", "why is the sky blue", domain.RetrieveOptions{Resolution: domain.ResolutionGist})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Empty(t, res.Results[0].Content)
	assert.Equal(t, "Why the sky is blue.", res.Results[0].Gist)

	res, err = env.navigator.Retrieve(ctx, "kb", "why is the sky blue", domain.RetrieveOptions{Resolution: domain.ResolutionSummary})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.True(t, strings.HasPrefix(res.Results[0].Content, "Why the sky is blue.\n\n"))
	assert.Contains(t, res.Results[0].Content, "Rayleigh scattering")
}

func TestRetrieve_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.navigator.Retrieve(ctx, "kb", "   ", domain.RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = env.navigator.Retrieve(ctx, "missing", "q", domain.RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)
	ingestRayleigh(t, env)
	env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 9}))
	env.oracle.reply(driven.PromptMapScan, `{"nodeIds": []}`)
	env.oracle.reply(driven.PromptBranch, `{"selected": []}`)

	var sources string
	env.oracle.on(driven.PromptAnswer, func(vars map[string]string) (string, error) {
		sources = vars["sources"]
		return "  Blue light scatters more [1].  ", nil
	})

	answer, err := env.navigator.Ask(context.Background(), "kb", "Why is the sky blue?", domain.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Blue light scatters more [1].", answer.Text)
	require.Len(t, answer.Sources, 1)
	assert.Empty(t, answer.Warnings)
	assert.True(t, strings.HasPrefix(sources, "[1] Rayleigh Scattering\n"))
	assert.Contains(t, sources, rayleighText)
}

func TestAsk_Fallbacks(t *testing.T) {
	t.Run("synthesis fails", func(t *testing.T) {
		env := newTestEnv(t)
		ingestRayleigh(t, env)
		env.oracle.on(driven.PromptRelevance, scoreByTitle(map[string]float64{"Rayleigh Scattering": 9}))

		answer, err := env.navigator.Ask(context.Background(), "kb", "why is the sky blue", domain.RetrieveOptions{})
		require.NoError(t, err)
		assert.Empty(t, answer.Text)
		assert.Len(t, answer.Sources, 1)
		require.Len(t, answer.Warnings, 1)
		assert.Contains(t, answer.Warnings[0], "answer synthesis failed")
	})

	t.Run("nothing relevant", func(t *testing.T) {
		env := newTestEnv(t)
		ingestRayleigh(t, env)
		env.oracle.on(driven.PromptRelevance, scoreByTitle(nil))

		answer, err := env.navigator.Ask(context.Background(), "kb", "cooking", domain.RetrieveOptions{})
		require.NoError(t, err)
		assert.Empty(t, answer.Sources)
		assert.Equal(t, []string{"no relevant nodes found"}, answer.Warnings)
		assert.Zero(t, env.oracle.count(driven.PromptAnswer))
	})
}

func TestRenderMap(t *testing.T) {
	env := newTestEnv(t)
	folderID, docID := ingestRayleigh(t, env)

	out, err := RenderMap(context.Background(), env.stores.Trees, "kb")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "kb-root | [folder] Knowledge: Notes by topic", lines[0])
	assert.Equal(t, "  "+folderID+" | [folder] root-notes: General notes", lines[1])
	assert.Equal(t, "    "+docID+" | [document] Rayleigh Scattering: Why the sky is blue.", lines[2])
}
