package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/punchamoorthee/protocol6713/internal/domain"
)

func TestSystemMessagesAreAuthoredBySystemActor(t *testing.T) {
	msgs := []domain.FeedMessage{
		SelfKill("nova"),
		ComaEntered("nova", domain.ComaChoice),
		ComaExited("nova"),
		CPRProgress("ghost", "medic", 4),
		CPRBatchComplete("ghost", "medic"),
		WhisperAdvisory("nova"),
	}
	for _, m := range msgs {
		assert.Equal(t, domain.SystemActor, m.AuthorID)
		assert.False(t, domain.IsHouse(m.AuthorID))
		assert.Equal(t, SystemActorName, m.Author)
		assert.Equal(t, domain.FeedSystem, m.Kind)
		assert.NotEmpty(t, m.Content)
	}
}

func TestComaEntered_ReasonWording(t *testing.T) {
	assert.Contains(t, ComaEntered("nova", domain.ComaChoice).Content, "VOLUNTARY")
	assert.Contains(t, ComaEntered("nova", domain.ComaQuest).Content, "QUEST")
}

func TestCPRMessages(t *testing.T) {
	p := CPRProgress("ghost", "medic", 4)
	assert.Contains(t, p.Content, "4/13")
	assert.False(t, p.Permanent)

	c := CPRBatchComplete("ghost", "medic")
	assert.Contains(t, c.Content, "@medic")
	assert.Contains(t, c.Content, "@ghost")
	assert.Contains(t, c.Content, "0/13")
	assert.True(t, c.Permanent)
}

func TestSelfKillIsPermanent(t *testing.T) {
	m := SelfKill("nova")
	assert.True(t, m.Permanent)
	assert.Contains(t, m.Content, "NOVA")
}
