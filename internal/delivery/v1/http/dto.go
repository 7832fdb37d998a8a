package http

import (
	"math"
	"time"

	"github.com/DRSN-tech/product-matcher/internal/domain"
	"github.com/DRSN-tech/product-matcher/internal/usecase"
)

const noMatchMessage = "no match found"

// MatchDTO описывает совпадение в ответе. similarity = null, если сходство не определено (нулевая норма).
type MatchDTO struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      string   `json:"price"`
	URL        string   `json:"url"`
	Similarity *float64 `json:"similarity"`
}

type IdentifyResponse struct {
	Matches []MatchDTO `json:"matches"`
	Message string     `json:"message,omitempty"`
	Cached  bool       `json:"cached"`
}

type StoreInfoResponse struct {
	Dim       int       `json:"dim"`
	Count     int       `json:"count"`
	Model     string    `json:"model"`
	BuildID   string    `json:"build_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewMatchDTO(m domain.MatchResult) MatchDTO {
	dto := MatchDTO{
		ID:    m.ID,
		Name:  m.Name,
		Price: m.Price,
		URL:   m.URL,
	}
	if !math.IsNaN(m.Similarity) && !math.IsInf(m.Similarity, 0) {
		s := m.Similarity
		dto.Similarity = &s
	}
	return dto
}

func NewIdentifyResponse(res *usecase.IdentifyRes) *IdentifyResponse {
	out := &IdentifyResponse{
		Matches: make([]MatchDTO, 0, len(res.Matches)),
		Cached:  res.Cached,
	}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, NewMatchDTO(m))
	}
	if len(out.Matches) == 0 {
		out.Message = noMatchMessage
	}
	return out
}

func NewStoreInfoResponse(info usecase.StoreInfo) *StoreInfoResponse {
	return &StoreInfoResponse{
		Dim:       info.Dim,
		Count:     info.Count,
		Model:     info.Model,
		BuildID:   info.BuildID,
		CreatedAt: info.CreatedAt,
	}
}
