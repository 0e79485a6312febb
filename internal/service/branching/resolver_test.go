package branching

import (
	"context"
	"errors"
	"testing"

	"variantree/internal/domain"
	models "variantree/internal/domain/models/branching"
)

// mapReader serves GetMessage from a map; resolution needs nothing else
type mapReader map[string]*models.Message

func (m mapReader) GetMessage(_ context.Context, id string) (*models.Message, error) {
	if msg, ok := m[id]; ok {
		return msg, nil
	}
	return nil, &domain.NotFoundError{Message: "message " + id + " not found"}
}

func (m mapReader) ListVariantsOf(context.Context, string) ([]models.Message, error) {
	return nil, nil
}

func (m mapReader) CountVariantsOf(context.Context, string) (int, error) { return 0, nil }

func (m mapReader) ListBranchMessages(context.Context, string) ([]models.Message, error) {
	return nil, nil
}

func (m mapReader) ListThreadBranches(context.Context, string) ([]string, error) { return nil, nil }

func chainReader(links map[string]string) mapReader {
	r := mapReader{}
	for id, of := range links {
		msg := &models.Message{ID: id, ThreadID: "t"}
		if of != "" {
			msg.VariantOfID = strPtr(of)
		}
		r[id] = msg
	}
	return r
}

func TestRootResolver(t *testing.T) {
	tests := []struct {
		name    string
		links   map[string]string // id -> variant_of_id
		start   string
		maxHops int
		wantID  string
		wantErr error
	}{
		{
			name:   "root resolves to itself",
			links:  map[string]string{"r": ""},
			start:  "r",
			wantID: "r",
		},
		{
			name:   "variant resolves in one hop",
			links:  map[string]string{"r": "", "v1": "r"},
			start:  "v1",
			wantID: "r",
		},
		{
			name:   "uncollapsed chain is still followed",
			links:  map[string]string{"r": "", "v1": "r", "v2": "v1", "v3": "v2"},
			start:  "v3",
			wantID: "r",
		},
		{
			name:    "missing start",
			links:   map[string]string{"r": ""},
			start:   "ghost",
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "dangling pointer",
			links:   map[string]string{"v1": "gone"},
			start:   "v1",
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "cycle",
			links:   map[string]string{"a": "b", "b": "a"},
			start:   "a",
			wantErr: domain.ErrDataIntegrity,
		},
		{
			name:    "self reference",
			links:   map[string]string{"a": "a"},
			start:   "a",
			wantErr: domain.ErrDataIntegrity,
		},
		{
			name:    "hop cap exceeded",
			links:   map[string]string{"r": "", "v1": "r", "v2": "v1", "v3": "v2"},
			start:   "v3",
			maxHops: 2,
			wantErr: domain.ErrDataIntegrity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxHops := tt.maxHops
			if maxHops == 0 {
				maxHops = 32
			}
			resolver := NewRootResolver(chainReader(tt.links), maxHops)

			root, err := resolver.Resolve(context.Background(), tt.start)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if root.ID != tt.wantID {
				t.Errorf("Resolve() = %s, want %s", root.ID, tt.wantID)
			}
			if !root.IsRoot() {
				t.Errorf("resolved message %s is not a root", root.ID)
			}
		})
	}
}
