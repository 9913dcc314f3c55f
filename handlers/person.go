package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/services"
)

const maxRegistrationImageBytes = 10 << 20

// PersonHandler serves the person registry endpoints.
type PersonHandler struct {
	People *services.PersonService
}

func NewPersonHandler(people *services.PersonService) *PersonHandler {
	return &PersonHandler{People: people}
}

// Register handles POST /api/persons. The request is multipart form data
// with an "image" file and the person's profile fields.
func (h *PersonHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxRegistrationImageBytes); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "expected multipart form data")
		return
	}

	personID := r.FormValue("person_id")
	name := r.FormValue("name")
	if personID == "" || name == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "person_id and name are required")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "image file is required")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxRegistrationImageBytes))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "failed to read image")
		return
	}

	person := &models.Person{
		PersonID: personID,
		Name:     name,
	}
	if v := r.FormValue("email"); v != "" {
		person.Email = &v
	}
	if v := r.FormValue("department"); v != "" {
		person.Department = &v
	}
	if v := r.FormValue("position"); v != "" {
		person.Position = &v
	}
	if v := r.FormValue("phone"); v != "" {
		person.Phone = &v
	}

	if err := h.People.Register(person, imageData); err != nil {
		WriteServiceError(w, err)
		return
	}

	log.Printf("handlers: registered person %s (%s)", person.Name, person.PersonID)
	writeJSON(w, http.StatusCreated, person)
}

// AddFace handles POST /api/persons/{personID}/faces, storing an additional
// encoding for an existing person.
func (h *PersonHandler) AddFace(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")

	if err := r.ParseMultipartForm(maxRegistrationImageBytes); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "expected multipart form data")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "image file is required")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxRegistrationImageBytes))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "failed to read image")
		return
	}

	if err := h.People.AddFace(personID, imageData); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"person_id": personID, "status": "face_added"})
}

type faceEntryView struct {
	PersonID  string `json:"person_id"`
	Name      string `json:"name"`
	ImagePath string `json:"image_path,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// ListFaces handles GET /api/faces. Encodings themselves are never
// serialized, only entry metadata.
func (h *PersonHandler) ListFaces(w http.ResponseWriter, r *http.Request) {
	entries := h.People.ListFaces()
	views := make([]faceEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, faceEntryView{
			PersonID:  e.PersonID,
			Name:      e.Name,
			ImagePath: e.ImagePath,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// ClearFaces handles DELETE /api/faces, wiping all stored encodings.
func (h *PersonHandler) ClearFaces(w http.ResponseWriter, r *http.Request) {
	if err := h.People.ClearFaces(); err != nil {
		WriteServiceError(w, err)
		return
	}
	log.Printf("handlers: face store cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// List handles GET /api/persons with optional status and department filters.
func (h *PersonHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	department := r.URL.Query().Get("department")

	people, err := h.People.List(status, department)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, people)
}

// Get handles GET /api/persons/{personID}.
func (h *PersonHandler) Get(w http.ResponseWriter, r *http.Request) {
	person, err := h.People.Get(chi.URLParam(r, "personID"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

type personUpdatePayload struct {
	Name       *string                `json:"name"`
	Email      *string                `json:"email"`
	Department *string                `json:"department"`
	Position   *string                `json:"position"`
	Phone      *string                `json:"phone"`
	Status     *string                `json:"status"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// Update handles PUT /api/persons/{personID}.
func (h *PersonHandler) Update(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")

	var payload personUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	person, err := h.People.Get(personID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	if payload.Name != nil {
		person.Name = *payload.Name
	}
	if payload.Email != nil {
		person.Email = payload.Email
	}
	if payload.Department != nil {
		person.Department = payload.Department
	}
	if payload.Position != nil {
		person.Position = payload.Position
	}
	if payload.Phone != nil {
		person.Phone = payload.Phone
	}
	if payload.Metadata != nil {
		person.Metadata = payload.Metadata
	}

	if err := h.People.Update(person); err != nil {
		WriteServiceError(w, err)
		return
	}

	if payload.Status != nil {
		if err := h.People.SetStatus(personID, *payload.Status); err != nil {
			WriteServiceError(w, err)
			return
		}
		person.Status = *payload.Status
	}

	writeJSON(w, http.StatusOK, person)
}

// Delete handles DELETE /api/persons/{personID}, marking the person deleted
// and removing their stored encodings.
func (h *PersonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	if err := h.People.Delete(personID); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"person_id": personID, "status": "deleted"})
}
