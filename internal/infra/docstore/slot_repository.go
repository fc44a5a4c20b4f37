package docstore

import (
	"context"

	"learning-progress-service/internal/domain"
)

// SlotRepository stores the (user, quiz) active-session pointer documents.
type SlotRepository struct {
	store Store
}

func NewSlotRepository(store Store) *SlotRepository {
	return &SlotRepository{store: store}
}

func slotID(userID, quizID string) string {
	return "slot:" + userID + ":" + quizID
}

func (r *SlotRepository) Get(ctx context.Context, userID, quizID string) (domain.ActiveSlot, error) {
	doc, err := r.store.Get(ctx, slotID(userID, quizID))
	if err != nil {
		return domain.ActiveSlot{}, err
	}
	var slot domain.ActiveSlot
	if err := decode(doc, TypeSlot, &slot, domain.ErrNotFound); err != nil {
		return domain.ActiveSlot{}, err
	}
	slot.Rev = doc.Rev
	return slot, nil
}

// Put claims or moves the slot. An empty Rev claims a fresh slot.
func (r *SlotRepository) Put(ctx context.Context, slot domain.ActiveSlot) (domain.ActiveSlot, error) {
	doc, err := encode(slotID(slot.UserID, slot.QuizID), TypeSlot, slot.Rev, slot, map[string]string{
		"userId": slot.UserID,
		"quizId": slot.QuizID,
	})
	if err != nil {
		return domain.ActiveSlot{}, err
	}
	saved, err := r.store.Put(ctx, doc)
	if err != nil {
		return domain.ActiveSlot{}, err
	}
	slot.Rev = saved.Rev
	return slot, nil
}
