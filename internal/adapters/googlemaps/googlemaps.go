// Package googlemaps adapts the Google Maps Platform into the traffic and
// geocoding capabilities. One shared maps.Client serves both; a circuit
// breaker trips the adapter's availability after consecutive upstream
// failures so the chain falls through to the next provider instead of
// hammering a broken API.
package googlemaps

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"googlemaps.github.io/maps"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
)

const providerName = "google-maps"

// Primary adapter: preferred over everything except explicit overrides.
const defaultPriority = 10

// breakerTrip is the consecutive-failure count that opens the circuit.
const breakerTrip = 5

// Client implements providers.TrafficProvider and providers.Geocoder.
type Client struct {
	api      *maps.Client
	breaker  *gobreaker.CircuitBreaker
	priority int
}

// New builds the adapter. An empty API key yields a permanently unavailable
// adapter rather than an error, per the uniform adapter semantics.
func New(apiKey string) (*Client, error) {
	c := &Client{
		priority: defaultPriority,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerName,
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTrip
			},
		}),
	}
	if apiKey == "" {
		return c, nil
	}
	api, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, freight.WrapE(err, freight.KindInfrastructure, "init google maps client")
	}
	c.api = api
	return c, nil
}

func (c *Client) ProviderName() string { return providerName }
func (c *Client) Priority() int        { return c.priority }

// Available reports whether the adapter can be asked right now: the API key
// must be configured and the circuit must not be open.
func (c *Client) Available(context.Context) bool {
	return c.api != nil && c.breaker.State() != gobreaker.StateOpen
}

// GetTraffic queries the Distance Matrix with live traffic and normalizes the
// answer. Provider failures come back as infrastructure errors.
func (c *Client) GetTraffic(ctx context.Context, origin, destination freight.Coords) (freight.TrafficResult, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.api.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
			Origins:       []string{latLng(origin)},
			Destinations:  []string{latLng(destination)},
			Mode:          maps.TravelModeDriving,
			DepartureTime: "now",
			TrafficModel:  maps.TrafficModelBestGuess,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
			return nil, fmt.Errorf("empty distance matrix response")
		}
		el := resp.Rows[0].Elements[0]
		if el.Status != "OK" {
			return nil, fmt.Errorf("distance matrix element status %s", el.Status)
		}
		estimated := el.Duration
		if el.DurationInTraffic > 0 {
			estimated = el.DurationInTraffic
		}
		res := freight.NewTrafficResult(
			el.Distance.Meters,
			int(el.Duration/time.Second),
			int(estimated/time.Second),
			providerName,
		)
		return res, nil
	})
	if err != nil {
		return freight.TrafficResult{}, freight.WrapE(err, freight.KindInfrastructure, "google maps traffic")
	}
	return out.(freight.TrafficResult), nil
}

// Geocode resolves an address through the Geocoding API. Unresolved
// addresses are validation errors, not infrastructure failures.
func (c *Client) Geocode(ctx context.Context, address string) (freight.Coords, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		results, err := c.api.Geocode(ctx, &maps.GeocodingRequest{Address: address})
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, freight.E(freight.KindValidation, "address %q did not resolve", address)
		}
		loc := results[0].Geometry.Location
		return freight.Coords{Lat: loc.Lat, Lng: loc.Lng}, nil
	})
	if err != nil {
		if freight.KindOf(err) == freight.KindValidation {
			return freight.Coords{}, err
		}
		return freight.Coords{}, freight.WrapE(err, freight.KindInfrastructure, "google maps geocode")
	}
	return out.(freight.Coords), nil
}

func latLng(c freight.Coords) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}
