package app

import (
	"gorm.io/gorm"

	assignmentrepo "github.com/yungbote/avatarworld/internal/data/repos/assignments"
	chatrepo "github.com/yungbote/avatarworld/internal/data/repos/chat"
	jobrepo "github.com/yungbote/avatarworld/internal/data/repos/jobs"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type Repos struct {
	Assignment  assignmentrepo.AssignmentRepo
	VideoJob    jobrepo.VideoJobRepo
	Activity    chatrepo.ActivityRepo
	Message     chatrepo.MessageRepo
	ThreadState chatrepo.ThreadStateRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Assignment:  assignmentrepo.NewAssignmentRepo(db, log),
		VideoJob:    jobrepo.NewVideoJobRepo(db, log),
		Activity:    chatrepo.NewActivityRepo(db, log),
		Message:     chatrepo.NewMessageRepo(db, log),
		ThreadState: chatrepo.NewThreadStateRepo(db, log),
	}
}
