package snowflake

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Once
)

// Init sets up the snowflake node. Call once at startup; later calls are ignored.
// machineID must be in [0, 1023] and unique per running instance.
func Init(machineID int64) {
	nodeOnce.Do(func() {
		if machineID < 0 || machineID > 1023 {
			zap.L().Warn("invalid snowflake machine id, using 1", zap.Int64("machineID", machineID))
			machineID = 1
		}
		var err error
		node, err = snowflake.NewNode(machineID)
		if err != nil {
			zap.L().Fatal("failed to initialize snowflake node", zap.Error(err))
		}
		zap.L().Info("snowflake node initialized", zap.Int64("machineID", machineID))
	})
}

// GenerateID returns a new snowflake id.
func GenerateID() int64 {
	Init(1)
	return node.Generate().Int64()
}

// GenerateIDString returns a new snowflake id as a decimal string.
// Message ids travel as strings so JavaScript clients keep full precision.
func GenerateIDString() string {
	Init(1)
	return node.Generate().String()
}
