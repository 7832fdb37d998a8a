package converter

// MatchResultRedisModel хранит совпадение в кэше. Similarity = nil для NaN, который JSON не поддерживает.
type MatchResultRedisModel struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      string   `json:"price"`
	URL        string   `json:"url"`
	Similarity *float64 `json:"similarity"`
}

// IdentifyRedisModel хранит закэшированный ответ на запрос идентификации.
type IdentifyRedisModel struct {
	Key     string                  `json:"key"`
	Matches []MatchResultRedisModel `json:"matches"`
}
