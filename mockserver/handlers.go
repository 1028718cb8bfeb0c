package mockserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/memdb"
)

func (s *Server) list(c echo.Context) error {
	table := c.Param("table")
	if !s.db.HasCollection(table) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown collection: "+table)
	}

	query := map[string]any{}
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	return c.JSON(http.StatusOK, s.db.Collection(table).Where(query))
}

func (s *Server) find(c echo.Context) error {
	table := c.Param("table")
	if !s.db.HasCollection(table) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown collection: "+table)
	}

	record, err := s.db.Collection(table).Find(c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, record)
}

func (s *Server) create(c echo.Context) error {
	record, err := bindRecord(c)
	if err != nil {
		return err
	}

	created, err := s.db.Collection(c.Param("table")).Insert(record)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, created)
}

func (s *Server) update(c echo.Context) error {
	table := c.Param("table")
	if !s.db.HasCollection(table) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown collection: "+table)
	}

	attrs, err := bindRecord(c)
	if err != nil {
		return err
	}

	updated, err := s.db.Collection(table).Update(c.Param("id"), attrs)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, updated)
}

func (s *Server) remove(c echo.Context) error {
	table := c.Param("table")
	if !s.db.HasCollection(table) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown collection: "+table)
	}

	if err := s.db.Collection(table).Remove(c.Param("id")); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) dump(c echo.Context) error {
	return c.JSON(http.StatusOK, s.db.Dump())
}

func (s *Server) reset(c echo.Context) error {
	if s.resetter == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "reset is not enabled")
	}

	if err := s.resetter.Reset(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not reset").SetInternal(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// bindRecord binds the body only, path params like :table are no attributes.
func bindRecord(c echo.Context) (fixture.Record, error) {
	record := fixture.Record{}

	binder := &echo.DefaultBinder{}
	if err := binder.BindBody(c, &record); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid record").SetInternal(err)
	}

	return record, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, memdb.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, memdb.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, memdb.ErrMissingID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
}
