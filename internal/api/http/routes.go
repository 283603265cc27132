package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stefanh12/holfuy/internal/health"
	"github.com/stefanh12/holfuy/internal/store"
	"github.com/stefanh12/holfuy/internal/weather"
)

var validate = validator.New()

// StationReader serves the latest station data.
type StationReader interface {
	GetLatest(id weather.StationID) (store.StationEntry, error)
	All() []store.StationEntry
	UpdatedAt() time.Time
}

// IssueLister serves health issues.
type IssueLister interface {
	Open() []health.Issue
	Resolved() []health.Issue
}

// StateReader serves the poll state of a station group.
type StateReader interface {
	State() weather.PollState
	Stations() []weather.StationID
}

// Deps are the read-only views the API exposes.
type Deps struct {
	Stations StationReader
	Issues   IssueLister
	Poller   StateReader
	Units    weather.Units
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations", func(c *fiber.Ctx) error {
		entries := deps.Stations.All()
		return c.JSON(fiber.Map{
			"configured": deps.Poller.Stations(),
			"updated_at": nullableTime(deps.Stations.UpdatedAt()),
			"units":      deps.Units,
			"stations":   entries,
		})
	})

	v1.Get("/stations/:id", func(c *fiber.Ctx) error {
		req, err := parseStationParams(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entry, err := deps.Stations.GetLatest(weather.CanonicalStationID(req.ID))
		if err != nil {
			return lookupError(err)
		}
		return c.JSON(entry)
	})

	v1.Get("/stations/:id/sensors/:sensor", func(c *fiber.Ctx) error {
		req, err := parseStationParams(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entry, err := deps.Stations.GetLatest(weather.CanonicalStationID(req.ID))
		if err != nil {
			return lookupError(err)
		}

		info, err := describeSensor(req.Sensor, deps.Units)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"station":      entry.ID,
			"name":         entry.Name,
			"sensor":       info,
			"value":        entry.Reading.Value(info.Key),
			"station_name": entry.Reading.StationName,
			"last_update":  entry.Reading.LastUpdate,
		})
	})

	v1.Get("/sensors", func(c *fiber.Ctx) error {
		return c.JSON(weather.Catalogue(deps.Units))
	})

	v1.Get("/issues", func(c *fiber.Ctx) error {
		resp := fiber.Map{"open": deps.Issues.Open()}
		if c.QueryBool("resolved") {
			resp["resolved"] = deps.Issues.Resolved()
		}
		return c.JSON(resp)
	})

	v1.Get("/poll/state", func(c *fiber.Ctx) error {
		st := deps.Poller.State()
		return c.JSON(fiber.Map{
			"consecutive_errors": st.ConsecutiveErrors,
			"interval":           st.Interval.String(),
			"interval_seconds":   st.Interval.Seconds(),
			"station_failures":   st.StationFailures,
			"last_error_kind":    st.LastErrorKind,
			"last_success":       nullableTime(st.LastSuccess),
			"last_failure":       nullableTime(st.LastFailure),
		})
	})
}

// stationParams holds the route parameters identifying a station sensor.
type stationParams struct {
	ID     string `validate:"required,numeric,min=1,max=6"`
	Sensor string `validate:"omitempty,oneof=wind_speed wind_gust wind_min wind_direction temperature"`
}

func parseStationParams(c *fiber.Ctx) (stationParams, error) {
	p := stationParams{
		ID:     c.Params("id"),
		Sensor: c.Params("sensor"),
	}
	if err := validate.Struct(p); err != nil {
		return p, err
	}
	return p, nil
}

func describeSensor(raw string, units weather.Units) (weather.SensorInfo, error) {
	info, ok := weather.Describe(weather.SensorKey(raw), units)
	if !ok {
		return weather.SensorInfo{}, fiber.NewError(fiber.StatusBadRequest, "unknown sensor "+raw)
	}
	return info, nil
}

func lookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no data for requested station")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read station data")
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
