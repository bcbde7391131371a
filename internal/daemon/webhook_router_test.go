package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photon-run/photond/internal/photon"
)

func TestWebhookRouter_AutoBindsHandlePrefix(t *testing.T) {
	r := NewWebhookRouter()
	descriptor := &photon.Descriptor{Methods: []photon.MethodDescriptor{
		{Name: "handleGithubPush"},
		{Name: "greet"},
	}}
	require.NoError(t, r.Rebuild(descriptor))

	method, ok := r.MethodForPath("github-push")
	require.True(t, ok)
	assert.Equal(t, "handleGithubPush", method)

	_, ok = r.MethodForPath("greet")
	assert.False(t, ok)
}

func TestWebhookRouter_BareAnnotationBindsOwnName(t *testing.T) {
	r := NewWebhookRouter()
	descriptor := &photon.Descriptor{Methods: []photon.MethodDescriptor{
		{Name: "deploy", WebhookBound: true},
	}}
	require.NoError(t, r.Rebuild(descriptor))

	method, ok := r.MethodForPath("deploy")
	require.True(t, ok)
	assert.Equal(t, "deploy", method)
}

func TestWebhookRouter_ExplicitPathOverridesConvention(t *testing.T) {
	r := NewWebhookRouter()
	descriptor := &photon.Descriptor{Methods: []photon.MethodDescriptor{
		{Name: "handleGithubPush", WebhookPath: "hooks/github"},
	}}
	require.NoError(t, r.Rebuild(descriptor))

	_, ok := r.MethodForPath("github-push")
	assert.False(t, ok)
	method, ok := r.MethodForPath("hooks/github")
	require.True(t, ok)
	assert.Equal(t, "handleGithubPush", method)
}

func TestWebhookRouter_CollisionFailsRebuild(t *testing.T) {
	r := NewWebhookRouter()
	descriptor := &photon.Descriptor{Methods: []photon.MethodDescriptor{
		{Name: "handleGithubPush"},
		{Name: "githubPush", WebhookBound: false, WebhookPath: "github-push"},
	}}
	err := r.Rebuild(descriptor)
	assert.Error(t, err)
}

func TestWebhookRouter_RebuildReplacesPriorMapping(t *testing.T) {
	r := NewWebhookRouter()
	require.NoError(t, r.Rebuild(&photon.Descriptor{Methods: []photon.MethodDescriptor{{Name: "handleOld"}}}))
	_, ok := r.MethodForPath("old")
	require.True(t, ok)

	require.NoError(t, r.Rebuild(&photon.Descriptor{Methods: []photon.MethodDescriptor{{Name: "handleNew"}}}))
	_, ok = r.MethodForPath("old")
	assert.False(t, ok)
	_, ok = r.MethodForPath("new")
	assert.True(t, ok)
}

func TestWebhookRouter_List_SortedByPath(t *testing.T) {
	r := NewWebhookRouter()
	require.NoError(t, r.Rebuild(&photon.Descriptor{Methods: []photon.MethodDescriptor{
		{Name: "handleZebra"},
		{Name: "handleAlpha"},
	}}))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Path)
	assert.Equal(t, "zebra", list[1].Path)
}
