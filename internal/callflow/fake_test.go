package callflow

import (
	"context"
	"sync"

	"github.com/tariel-x/callsupport/internal/callsupport"
	"github.com/tariel-x/callsupport/internal/models"
)

type roomCall struct {
	roomID string
	userID string
}

// fakeService records every call. When gate is set, accept and reject
// block until it is closed; started receives one value per blocked call.
type fakeService struct {
	mu        sync.Mutex
	creates   []roomCall
	validates []roomCall
	rejects   []roomCall
	accepts   []roomCall

	createRoom  *models.CallRoom
	createErr   error
	validateRes *callsupport.Response
	validateErr error
	rejectErr   error
	acceptErr   error

	gate    chan struct{}
	started chan struct{}
}

func (f *fakeService) CreateRoom(ctx context.Context, userID, trainerID string) (*models.CallRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, roomCall{roomID: trainerID, userID: userID})
	return f.createRoom, f.createErr
}

func (f *fakeService) ValidateRoom(ctx context.Context, roomID, currentUserID string) (*callsupport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validates = append(f.validates, roomCall{roomID: roomID, userID: currentUserID})
	return f.validateRes, f.validateErr
}

func (f *fakeService) RejectCall(ctx context.Context, roomID, rejectorID string) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects = append(f.rejects, roomCall{roomID: roomID, userID: rejectorID})
	return f.rejectErr
}

func (f *fakeService) AcceptCall(ctx context.Context, roomID, acceptorID string) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts = append(f.accepts, roomCall{roomID: roomID, userID: acceptorID})
	return f.acceptErr
}

func (f *fakeService) wait() {
	if f.gate == nil {
		return
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	<-f.gate
}

func (f *fakeService) count(calls *[]roomCall) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(*calls)
}
