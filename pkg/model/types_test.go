package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractThinkingContent(t *testing.T) {
	thinking, content := ExtractThinkingContent("<think>reasoning here</think>the answer")
	assert.Equal(t, "reasoning here", thinking)
	assert.Equal(t, "the answer", content)
}

func TestExtractThinkingContentNoTags(t *testing.T) {
	thinking, content := ExtractThinkingContent("plain answer")
	assert.Empty(t, thinking)
	assert.Equal(t, "plain answer", content)
}

func TestExtractThinkingContentUnterminated(t *testing.T) {
	thinking, content := ExtractThinkingContent("<think>never closed")
	assert.Equal(t, "never closed", thinking)
	assert.Empty(t, content)
}

func TestExtractThinkingContentMultipleBlocks(t *testing.T) {
	thinking, content := ExtractThinkingContent("<think>one</think>first<think>two</think>second")
	assert.Contains(t, thinking, "one")
	assert.Contains(t, thinking, "two")
	assert.Equal(t, "firstsecond", content)
}

func TestExtractThinkingContentEmpty(t *testing.T) {
	thinking, content := ExtractThinkingContent("")
	assert.Empty(t, thinking)
	assert.Empty(t, content)
}
