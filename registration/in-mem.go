package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

type InMemRegistry struct {
	regs *xsync.MapOf[uuid.UUID, Registration]
}

func NewInMemRegistry() *InMemRegistry {
	return &InMemRegistry{regs: xsync.NewMapOf[uuid.UUID, Registration]()}
}

func (r *InMemRegistry) Put(reg Registration) {
	r.regs.Store(reg.UUID, reg)
}

func (r *InMemRegistry) Get(id uuid.UUID) (Registration, bool) {
	return r.regs.Load(id)
}

func (r *InMemRegistry) IsConfirmed(ctx context.Context, id uuid.UUID, examID string, userUUID uuid.UUID) (bool, error) {
	reg, ok := r.regs.Load(id)
	if !ok || reg.ExamID != examID || reg.UserUUID != userUUID {
		return false, nil
	}
	return reg.Status == StatusConfirmed, nil
}

func (r *InMemRegistry) Disqualify(ctx context.Context, id uuid.UUID, reason string) error {
	found := false
	r.regs.Compute(id, func(reg Registration, loaded bool) (Registration, bool) {
		if !loaded {
			return reg, true
		}
		found = true
		reg.Status = StatusDisqualified
		reg.DisqualifiedReason = &reason
		reg.UpdatedAt = time.Now()
		return reg, false
	})
	if !found {
		return fmt.Errorf("registration %s not found", id)
	}
	return nil
}

func (r *InMemRegistry) Reinstate(ctx context.Context, id uuid.UUID) error {
	found := false
	r.regs.Compute(id, func(reg Registration, loaded bool) (Registration, bool) {
		if !loaded {
			return reg, true
		}
		found = true
		if reg.Status == StatusDisqualified {
			reg.Status = StatusConfirmed
			reg.DisqualifiedReason = nil
			reg.UpdatedAt = time.Now()
		}
		return reg, false
	})
	if !found {
		return fmt.Errorf("registration %s not found", id)
	}
	return nil
}
