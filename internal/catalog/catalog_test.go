package catalog

import (
	"reflect"
	"strings"
	"testing"
)

func TestDefaultCatalogProfiles(t *testing.T) {
	t.Parallel()

	c := Default()

	want := []string{"gpt-4-turbo", "gpt-4o", "gpt-4o-mini"}
	if got := c.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names()=%v, want %v", got, want)
	}

	profile, ok := c.Get("GPT-4o-Mini ")
	if !ok {
		t.Fatal("Get(gpt-4o-mini) not found")
	}
	if profile.InputPerMillion != 0.15 || profile.OutputPerMillion != 0.60 {
		t.Fatalf("gpt-4o-mini prices=%v/%v, want 0.15/0.60", profile.InputPerMillion, profile.OutputPerMillion)
	}
	if c.Multimodal().Name != DefaultMultimodalModel {
		t.Fatalf("Multimodal()=%q, want %q", c.Multimodal().Name, DefaultMultimodalModel)
	}
	if !c.Multimodal().SupportsImages {
		t.Fatal("multimodal profile must support images")
	}
}

func TestNewRejectsInvalidCatalogs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		profiles   []Profile
		multimodal string
		wantErr    string
	}{
		{
			name:       "empty",
			multimodal: "gpt-4o",
			wantErr:    "at least one model profile",
		},
		{
			name:       "missing name",
			profiles:   []Profile{{Name: " ", SupportsImages: true}},
			multimodal: "gpt-4o",
			wantErr:    "models[0].name is required",
		},
		{
			name: "duplicate",
			profiles: []Profile{
				{Name: "gpt-4o", SupportsImages: true},
				{Name: "GPT-4O"},
			},
			multimodal: "gpt-4o",
			wantErr:    "defined more than once",
		},
		{
			name:       "negative price",
			profiles:   []Profile{{Name: "gpt-4o", InputPerMillion: -1, SupportsImages: true}},
			multimodal: "gpt-4o",
			wantErr:    "prices must be >= 0",
		},
		{
			name:       "unknown multimodal",
			profiles:   []Profile{{Name: "gpt-4o", SupportsImages: true}},
			multimodal: "gpt-5",
			wantErr:    "is not in the catalog",
		},
		{
			name:       "multimodal without images",
			profiles:   []Profile{{Name: "gpt-4o-mini"}},
			multimodal: "gpt-4o-mini",
			wantErr:    "does not support images",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.profiles, tt.multimodal)
			if err == nil {
				t.Fatal("New() error=nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("New() error=%q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	c := Default()

	tests := []struct {
		name           string
		requested      string
		hasImages      bool
		wantEffective  string
		wantOverridden bool
	}{
		{name: "text keeps requested", requested: "gpt-4o-mini", wantEffective: "gpt-4o-mini"},
		{name: "text keeps unknown model", requested: "my-finetune", wantEffective: "my-finetune"},
		{name: "images override text-only model", requested: "gpt-4o-mini", hasImages: true, wantEffective: "gpt-4o", wantOverridden: true},
		{name: "images override unknown model", requested: "my-finetune", hasImages: true, wantEffective: "gpt-4o", wantOverridden: true},
		{name: "images keep multimodal model", requested: "gpt-4o", hasImages: true, wantEffective: "gpt-4o"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := c.Select(tt.requested, tt.hasImages)
			if got.Requested != tt.requested {
				t.Fatalf("Requested=%q, want %q", got.Requested, tt.requested)
			}
			if got.Effective != tt.wantEffective {
				t.Fatalf("Effective=%q, want %q", got.Effective, tt.wantEffective)
			}
			if got.Overridden != tt.wantOverridden {
				t.Fatalf("Overridden=%t, want %t", got.Overridden, tt.wantOverridden)
			}
			if tt.wantOverridden && !strings.Contains(got.Notice, tt.requested) {
				t.Fatalf("Notice=%q, want mention of %q", got.Notice, tt.requested)
			}
			if !tt.wantOverridden && got.Notice != "" {
				t.Fatalf("Notice=%q, want empty", got.Notice)
			}
		})
	}
}

func TestSelectWithImagesAlwaysReturnsImageCapableModel(t *testing.T) {
	t.Parallel()

	c := Default()
	for _, requested := range append(c.Names(), "", "unknown") {
		got := c.Select(requested, true)
		profile, ok := c.Get(got.Effective)
		if !ok || !profile.SupportsImages {
			t.Fatalf("Select(%q, true).Effective=%q is not image capable", requested, got.Effective)
		}
	}
}
