//go:build integration

package passlock

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type RedisIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	client    *redis.Client
	logger    *slog.Logger
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	endpoint, err := container.Endpoint(s.ctx, "")
	s.Require().NoError(err)
	s.client = NewRedisClient(endpoint, "", 0)
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRedisIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) TestAcquireRelease() {
	first := NewRedis(s.client, "acquire", time.Minute, s.logger)
	second := NewRedis(s.client, "acquire", time.Minute, s.logger)

	release, err := first.Acquire(s.ctx)
	s.Require().NoError(err)

	_, err = second.Acquire(s.ctx)
	s.ErrorIs(err, ErrHeld)

	release()

	release, err = second.Acquire(s.ctx)
	s.NoError(err)
	release()
}

func (s *RedisIntegrationSuite) TestReleaseKeepsForeignLock() {
	lock := NewRedis(s.client, "foreign", time.Minute, s.logger)

	release, err := lock.Acquire(s.ctx)
	s.Require().NoError(err)

	// simulate expiry followed by another holder
	s.Require().NoError(s.client.Set(s.ctx, lock.key, "someone-else", time.Minute).Err())
	release()

	val, err := s.client.Get(s.ctx, lock.key).Result()
	s.NoError(err)
	s.Equal("someone-else", val)
}

func (s *RedisIntegrationSuite) TestLockRenewedWhileHeld() {
	first := NewRedis(s.client, "renewed", 300*time.Millisecond, s.logger)
	second := NewRedis(s.client, "renewed", 300*time.Millisecond, s.logger)

	release, err := first.Acquire(s.ctx)
	s.Require().NoError(err)

	time.Sleep(time.Second)
	_, err = second.Acquire(s.ctx)
	s.ErrorIs(err, ErrHeld)

	release()
	release()

	release, err = second.Acquire(s.ctx)
	s.Require().NoError(err)
	release()
}

func (s *RedisIntegrationSuite) TestLockExpiresWhenHolderIsGone() {
	lock := NewRedis(s.client, "expiry", 200*time.Millisecond, s.logger)

	// a crashed holder never renews
	s.Require().NoError(s.client.Set(s.ctx, lock.key, "crashed", 200*time.Millisecond).Err())

	s.Eventually(func() bool {
		release, err := lock.Acquire(s.ctx)
		if err != nil {
			return false
		}
		release()
		return true
	}, 5*time.Second, 100*time.Millisecond)
}
