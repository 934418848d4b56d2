package retrieval

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/fourblocks/types"
)

// LoadDatabaseFile 从离线摄取脚本产出的静态 JSON 工件加载语料。
// 工件 schema 对外固定；embedding 维度与声明不符只记警告，
// 真正的维度校验在相似度计算时作为硬错误执行。
func (e *Engine) LoadDatabaseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.NewErrorf(types.ErrInvalidDatabase, "read embeddings file %s", path).WithCause(err)
	}

	var db types.EmbeddingsDatabase
	if err := json.Unmarshal(data, &db); err != nil {
		return types.NewErrorf(types.ErrInvalidDatabase, "parse embeddings file %s", path).WithCause(err)
	}

	for _, chunk := range db.Chunks {
		if chunk.Embedding != nil && db.Dimensions > 0 && len(chunk.Embedding) != db.Dimensions {
			e.logger.Warn("chunk embedding dimension differs from database header",
				zap.String("chunk_id", chunk.ID),
				zap.Int("got", len(chunk.Embedding)),
				zap.Int("declared", db.Dimensions))
		}
	}

	return e.LoadDatabase(&db)
}
