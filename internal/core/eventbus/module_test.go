package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-nest/config"
)

// TestModule 测试 Fx 模块按配置提供总线
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Executor.EventBacklog = 32

	var bus *Bus
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&bus),
	)
	app.RequireStart()

	assert.Equal(t, 32, bus.Backlog())

	sub := bus.Subscribe()
	app.RequireStop()

	_, ok, err := sub.TryNext()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
}
