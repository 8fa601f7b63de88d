package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetpatell07/GBC-EventBooking/internal/domain/booking"
)

type GetBooking struct {
	redisClient *redis.Client
	reader      BookingReader
}

func NewGetBooking(redisClient *redis.Client, reader BookingReader) *GetBooking {
	return &GetBooking{
		redisClient: redisClient,
		reader:      reader,
	}
}

// Execute reads through a short-lived cache so repeated status polls
// (the gateway's query path) stay off the database. The TTL is short
// because the approval relay may flip booking state at any time.
func (uc *GetBooking) Execute(ctx context.Context, bookingID string) (*booking.Booking, error) {
	cacheKey := fmt.Sprintf("booking:%s", bookingID)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var b booking.Booking
			if err := json.Unmarshal([]byte(val), &b); err == nil {
				return &b, nil
			}
		}
	}

	b, err := uc.reader.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if uc.redisClient != nil {
		data, _ := json.Marshal(b)
		uc.redisClient.Set(ctx, cacheKey, data, 2*time.Second)
	}

	return b, nil
}

func (uc *GetBooking) ListByRequester(ctx context.Context, requesterID string) ([]*booking.Booking, error) {
	return uc.reader.ListByRequester(ctx, requesterID)
}
