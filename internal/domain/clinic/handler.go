package clinic

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts patients, doctors and mappings on api (/api). Every
// route requires a bearer token.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	patients := api.Group("/patients")
	patients.POST("/", h.CreatePatient)
	patients.GET("/", h.ListPatients)
	patients.GET("/:id/", h.GetPatient)
	patients.PUT("/:id/", h.ReplacePatient)
	patients.PATCH("/:id/", h.PatchPatient)
	patients.DELETE("/:id/", h.DeletePatient)

	doctors := api.Group("/doctors")
	doctors.POST("/", h.CreateDoctor)
	doctors.GET("/", h.ListDoctors)
	doctors.GET("/:id/", h.GetDoctor)
	doctors.PUT("/:id/", h.ReplaceDoctor)
	doctors.PATCH("/:id/", h.PatchDoctor)
	doctors.DELETE("/:id/", h.DeleteDoctor)

	mappings := api.Group("/mappings")
	mappings.POST("/", h.CreateMapping)
	mappings.GET("/", h.ListMappings)
	mappings.GET("/patient/:patient_id/", h.ListDoctorsForPatient)
	mappings.GET("/:id/", h.GetMapping)
	mappings.DELETE("/:id/", h.DeleteMapping)
}

// -- Patient --

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), caller(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), caller(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg, c.Request().URL))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c, "id", "patient")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), caller(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ReplacePatient(c echo.Context) error {
	return h.updatePatient(c, false)
}

func (h *Handler) PatchPatient(c echo.Context) error {
	return h.updatePatient(c, true)
}

func (h *Handler) updatePatient(c echo.Context, partial bool) error {
	id, err := pathID(c, "id", "patient")
	if err != nil {
		return err
	}
	var in PatientInput
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), caller(c), id, in, partial)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := pathID(c, "id", "patient")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), caller(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctor --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := bind(c, &in); err != nil {
		return err
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), caller(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	filter := DoctorFilter{Specialization: c.QueryParam("specialization")}
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), caller(c), filter, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg, c.Request().URL))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := pathID(c, "id", "doctor")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), caller(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ReplaceDoctor(c echo.Context) error {
	return h.updateDoctor(c, false)
}

func (h *Handler) PatchDoctor(c echo.Context) error {
	return h.updateDoctor(c, true)
}

func (h *Handler) updateDoctor(c echo.Context, partial bool) error {
	id, err := pathID(c, "id", "doctor")
	if err != nil {
		return err
	}
	var in DoctorInput
	if err := bind(c, &in); err != nil {
		return err
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), caller(c), id, in, partial)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := pathID(c, "id", "doctor")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), caller(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Mapping --

func (h *Handler) CreateMapping(c echo.Context) error {
	var in MappingInput
	if err := bind(c, &in); err != nil {
		return err
	}
	m, err := h.svc.CreateMapping(c.Request().Context(), caller(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMappings(c echo.Context) error {
	pg := pagination.FromContext(c)
	mappings, total, err := h.svc.ListMappings(c.Request().Context(), caller(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(mappings, total, pg, c.Request().URL))
}

func (h *Handler) ListDoctorsForPatient(c echo.Context) error {
	id, err := pathID(c, "patient_id", "patient")
	if err != nil {
		return err
	}
	out, err := h.svc.ListDoctorsForPatient(c.Request().Context(), caller(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetMapping(c echo.Context) error {
	id, err := pathID(c, "id", "mapping")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMapping(c.Request().Context(), caller(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMapping(c echo.Context) error {
	id, err := pathID(c, "id", "mapping")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMapping(c.Request().Context(), caller(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// caller returns the authenticated identity, or the zero Identity which the
// service rejects.
func caller(c echo.Context) auth.Identity {
	id, _ := auth.IdentityFromContext(c.Request().Context())
	return id
}

// pathID parses a UUID path parameter. A malformed id cannot name an existing
// row, so it reports not found.
func pathID(c echo.Context, param, resource string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, apperr.NotFound(resource)
	}
	return id, nil
}

func bind(c echo.Context, dst interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return apperr.Validation(map[string]string{"body": "request body must be valid JSON"})
	}
	return nil
}
