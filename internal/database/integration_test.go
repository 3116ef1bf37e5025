//go:build integration

package database_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"ms-reservation/internal/apperrors"
	booking_db "ms-reservation/internal/booking/db"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/database/dbtest"
	"ms-reservation/internal/database/migrations"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "reservation",
				"POSTGRES_PASSWORD": "reservation",
				"POSTGRES_DB":       "reservation",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	log := logger.NewNop()
	bunDB, err := database.Connect(ctx, config.DatabaseConfig{
		DSN:          fmt.Sprintf("postgres://reservation:reservation@%s:%s/reservation?sslmode=disable", host, port.Port()),
		MaxOpenConns: 16,
		MaxIdleConns: 16,
		MaxLifetime:  time.Minute,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: "../../migrations"}, log)
	require.NoError(t, runner.Up())
	return bunDB
}

func TestPostgres_TakenSeatIndex(t *testing.T) {
	bunDB := startPostgres(t)
	f := dbtest.Seed(t, bunDB)
	ctx := context.Background()

	insert := func(status string) error {
		seatID := f.VIPSeat.ID
		_, err := bunDB.NewInsert().Model(&models.Ticket{
			EventID:    f.Event.ID,
			UserID:     "user-1",
			CategoryID: f.VIP.ID,
			SeatID:     &seatID,
			Status:     status,
			CreatedAt:  time.Now().UTC(),
		}).Exec(ctx)
		return err
	}

	require.NoError(t, insert(models.TicketPending))
	err := insert(models.TicketBooked)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	// Cancelled tickets do not occupy the seat.
	require.NoError(t, insert(models.TicketCancelled))
}

func TestPostgres_ConcurrentHoldsOneWinner(t *testing.T) {
	bunDB := startPostgres(t)
	f := dbtest.Seed(t, bunDB)
	store := &booking_db.DB{Bun: bunDB}

	const buyers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			seatID := f.StdSeat.ID
			err := store.CreateHolds(context.Background(), []*models.Ticket{{
				EventID:    f.Event.ID,
				UserID:     fmt.Sprintf("buyer-%d", i),
				CategoryID: f.Standard.ID,
				SeatID:     &seatID,
				Status:     models.TicketPending,
				CreatedAt:  time.Now().UTC(),
			}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, apperrors.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, buyers-1, conflicts)
}

func TestPostgres_ConcurrentHoldsRespectQuota(t *testing.T) {
	bunDB := startPostgres(t)
	f := dbtest.Seed(t, bunDB)
	ctx := context.Background()
	store := &booking_db.DB{Bun: bunDB}

	const buyers = 8
	const quota = 3
	_, err := bunDB.NewUpdate().Model((*models.CategoryTicket)(nil)).Set("max_quantity = ?", quota).Where("id = ?", f.VIP.ID).Exec(ctx)
	require.NoError(t, err)
	seats := make([]int64, buyers)
	for i := range seats {
		seat := &models.Seat{AreaID: f.Area.ID, SeatCode: fmt.Sprintf("Q%d", i), RowNo: "Q", ColumnNo: i + 1, Status: models.SeatAvailable, SeatType: "VIP"}
		_, err := bunDB.NewInsert().Model(seat).Exec(ctx)
		require.NoError(t, err)
		seats[i] = seat.ID
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		refused int
	)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			seatID := seats[i]
			err := store.CreateHolds(ctx, []*models.Ticket{{
				EventID:    f.Event.ID,
				UserID:     fmt.Sprintf("buyer-%d", i),
				CategoryID: f.VIP.ID,
				SeatID:     &seatID,
				Status:     models.TicketPending,
				CreatedAt:  time.Now().UTC(),
			}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, apperrors.ErrValidation):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, quota, won)
	assert.Equal(t, buyers-quota, refused)
}
