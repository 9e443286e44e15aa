package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"laundry-pay-backend/internal/ha"
)

type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func subscriptionRows(endpoint string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
		AddRow(endpoint, "test_p256dh", "test_auth", time.Now())
}

func TestPoolSendsCycleStartedPush(t *testing.T) {
	gormDB, mock := newTestDB(t)
	p := NewPool(1, gormDB, nil, TTSSettings{}, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	p.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			assert.Equal(t, "https://example.com/push", sub.Endpoint)
			assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
			assert.Equal(t, "Machine 2 started a 30 minute cycle.", string(payload))
			wg.Done()
			return &http.Response{
				StatusCode: http.StatusCreated,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	}

	mock.ExpectQuery(`SELECT .* FROM "push_subscriptions" JOIN subscribed_machines sm ON sm\.endpoint = push_subscriptions\.endpoint WHERE sm\.machine_number = \$1`).
		WithArgs(2).
		WillReturnRows(subscriptionRows("https://example.com/push"))

	p.CycleStarted(2, 30)
	wg.Wait()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolSendsCycleFinishedPush(t *testing.T) {
	gormDB, mock := newTestDB(t)
	p := NewPool(1, gormDB, nil, TTSSettings{}, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	p.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			assert.Equal(t, "Machine 5 has finished its cycle.", string(payload))
			wg.Done()
			return &http.Response{
				StatusCode: http.StatusCreated,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	}

	mock.ExpectQuery(`SELECT .* FROM "push_subscriptions" JOIN subscribed_machines sm`).
		WithArgs(5).
		WillReturnRows(subscriptionRows("https://example.com/push"))

	p.CycleFinished(5)
	wg.Wait()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolDeletesExpiredSubscription(t *testing.T) {
	gormDB, mock := newTestDB(t)
	p := NewPool(1, gormDB, nil, TTSSettings{}, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusGone,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	}

	mock.ExpectQuery(`SELECT .* FROM "push_subscriptions" JOIN subscribed_machines sm`).
		WithArgs(3).
		WillReturnRows(subscriptionRows("https://example.com/expired"))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
		WithArgs("https://example.com/expired").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p.CycleStarted(3, 60)

	time.Sleep(100 * time.Millisecond)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolNoSubscribersSendsNothing(t *testing.T) {
	gormDB, mock := newTestDB(t)
	p := NewPool(1, gormDB, nil, TTSSettings{}, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	sent := false
	p.sender = &mockSender{
		SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			sent = true
			return nil, nil
		},
	}

	mock.ExpectQuery(`SELECT .* FROM "push_subscriptions" JOIN subscribed_machines sm`).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}))

	p.CycleStarted(4, 30)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolSpeaksThroughHomeAssistant(t *testing.T) {
	spoken := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/services/tts/speak", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		spoken <- payload["message"].(string)
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client := ha.NewClient(srv.URL, "token", time.Second)
	p := NewPool(1, nil, client, TTSSettings{MediaPlayer: "media_player.hall"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Speak("Machine 1 started for 30 minutes.")

	select {
	case msg := <-spoken:
		assert.Equal(t, "Machine 1 started for 30 minutes.", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("tts message never delivered")
	}
}
