package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/chorus/internal/config"
	"github.com/MrWong99/chorus/pkg/provider"
	"github.com/MrWong99/chorus/pkg/provider/mock"
)

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateProvider(config.ProviderEntry{Name: "spotify"}, nil)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &mock.Provider{}
	fetcher := &mock.Fetcher{}

	var gotEntry config.ProviderEntry
	var gotFetcher provider.Fetcher
	reg.RegisterProvider("youtube", func(e config.ProviderEntry, f provider.Fetcher) (provider.Provider, error) {
		gotEntry, gotFetcher = e, f
		return want, nil
	})

	p, err := reg.CreateProvider(config.ProviderEntry{Name: "youtube", SearchLimit: 4}, fetcher)
	if err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	if p != want {
		t.Error("CreateProvider returned a different provider")
	}
	if gotEntry.SearchLimit != 4 || gotFetcher != fetcher {
		t.Errorf("factory got entry %+v fetcher %v", gotEntry, gotFetcher)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterProvider("ytmusic", func(config.ProviderEntry, provider.Fetcher) (provider.Provider, error) {
		return nil, boom
	})
	_, err := reg.CreateProvider(config.ProviderEntry{Name: "ytmusic"}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	factory := func(config.ProviderEntry, provider.Fetcher) (provider.Provider, error) { return &mock.Provider{}, nil }
	reg.RegisterProvider("ytmusic", factory)
	reg.RegisterProvider("youtube", factory)
	reg.RegisterProvider("youtube", factory)
	if got := reg.Names(); !slices.Equal(got, []string{"youtube", "ytmusic"}) {
		t.Errorf("Names() = %v", got)
	}
}
