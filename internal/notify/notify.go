// Package notify builds the system-authored feed messages the economy emits
// on lifecycle transitions and CPR progress. Messages are written by the
// well-known system actor, which never holds or spends Talents.
package notify

import (
	"fmt"
	"strings"

	"github.com/punchamoorthee/protocol6713/internal/domain"
)

// SystemActorName is the display name of domain.SystemActor.
const SystemActorName = "Pope AI"

// CPRBatchSize is the number of rescues that completes one revelation batch.
const CPRBatchSize = 13

func system(content string, permanent bool) domain.FeedMessage {
	return domain.FeedMessage{
		AuthorID:  domain.SystemActor,
		Author:    SystemActorName,
		Content:   content,
		Kind:      domain.FeedSystem,
		Permanent: permanent,
	}
}

func SelfKill(displayName string) domain.FeedMessage {
	return system(fmt.Sprintf("USER %s HAS SELF-KILLED THEIR ACCOUNT. THE SHRINE STANDS FOR 72 HOURS.",
		strings.ToUpper(displayName)), true)
}

func ComaEntered(displayName string, reason domain.ComaReason) domain.FeedMessage {
	name := strings.ToUpper(displayName)
	if reason == domain.ComaQuest {
		return system(fmt.Sprintf("%s HAS BEEN PLACED IN COMA BY QUEST.", name), false)
	}
	return system(fmt.Sprintf("%s HAS ENTERED VOLUNTARY COMA.", name), false)
}

func ComaExited(displayName string) domain.FeedMessage {
	return system(fmt.Sprintf("%s HAS RETURNED FROM COMA.", strings.ToUpper(displayName)), false)
}

func CPRProgress(ghost, rescuer string, count int64) domain.FeedMessage {
	return system(fmt.Sprintf("@everyone %s gave CPR to @%s. %d/%d collected.",
		rescuer, ghost, count, CPRBatchSize), false)
}

func CPRBatchComplete(ghost, rescuer string) domain.FeedMessage {
	return system(fmt.Sprintf("@%s gave the 13th CPR to @%s. The shrine link is revealed to this batch's rescuers. Counter reset to 0/%d.",
		rescuer, ghost, CPRBatchSize), true)
}

func WhisperAdvisory(displayName string) domain.FeedMessage {
	return system(fmt.Sprintf("@everyone advise @%s, who is in COMA, to log off.", displayName), false)
}
