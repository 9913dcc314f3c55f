package services

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/visionsuite/attendvision/facestore"
	"github.com/visionsuite/attendvision/models"
	"github.com/visionsuite/attendvision/repository"
	"github.com/visionsuite/attendvision/vision"
	"gocv.io/x/gocv"
	"gorm.io/gorm"
)

// PersonService provides person lifecycle and face registration operations.
// It keeps the recognizer's in-memory mirror consistent with the persistent
// face store.
type PersonService struct {
	personRepo repository.PersonRepositoryInterface
	store      *facestore.Store
	recognizer *vision.Recognizer

	// facesMu keeps each store write and its mirror publish atomic with
	// respect to other registrations.
	facesMu sync.Mutex
}

// NewPersonService creates a new person service
func NewPersonService(personRepo repository.PersonRepositoryInterface, store *facestore.Store, recognizer *vision.Recognizer) *PersonService {
	return &PersonService{
		personRepo: personRepo,
		store:      store,
		recognizer: recognizer,
	}
}

// LoadMirror publishes the face store contents to the recognizer. Called at
// startup and after bulk mutations.
func (s *PersonService) LoadMirror() {
	encodings, names, personIDs := s.store.Snapshot()
	s.recognizer.SetMirror(encodings, names, personIDs)
	log.Printf("recognition: loaded %d known face encodings", len(encodings))
}

// Register upserts the person record and stores their face encoding from an
// encoded image (JPEG or PNG bytes). Registering an existing person_id
// refreshes the profile row and reactivates it; a face that cannot be found
// fails the whole operation.
func (s *PersonService) Register(person *models.Person, imageData []byte) error {
	img, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil || img.Empty() {
		if err == nil {
			img.Close()
		}
		return ErrInvalidImage
	}
	defer img.Close()

	encoding, _, ok := s.recognizer.EncodeSingleFace(img)
	if !ok {
		return ErrNoFace
	}

	if err := s.personRepo.Create(person); err != nil {
		if !errors.Is(err, repository.ErrPersonExists) {
			return err
		}
		if err := s.personRepo.Update(person); err != nil {
			return fmt.Errorf("failed to upsert person %s: %w", person.PersonID, err)
		}
		if err := s.personRepo.SetStatus(person.PersonID, models.PersonStatusActive); err != nil {
			return fmt.Errorf("failed to reactivate person %s: %w", person.PersonID, err)
		}
	}

	s.facesMu.Lock()
	defer s.facesMu.Unlock()
	if err := s.store.Add(person.Name, person.PersonID, encoding, ""); err != nil {
		return fmt.Errorf("failed to store face encoding for %s: %w", person.PersonID, err)
	}
	s.recognizer.AppendMirror(encoding, person.Name, person.PersonID)

	log.Printf("recognition: registered %s (%s), store now holds %d encodings", person.Name, person.PersonID, s.store.Count())
	return nil
}

// AddFace stores an additional encoding for an existing person, improving
// recognition across angles and lighting
func (s *PersonService) AddFace(personID string, imageData []byte) error {
	person, err := s.Get(personID)
	if err != nil {
		return err
	}

	img, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil || img.Empty() {
		if err == nil {
			img.Close()
		}
		return ErrInvalidImage
	}
	defer img.Close()

	encoding, _, ok := s.recognizer.EncodeSingleFace(img)
	if !ok {
		return ErrNoFace
	}

	s.facesMu.Lock()
	defer s.facesMu.Unlock()
	if err := s.store.Add(person.Name, person.PersonID, encoding, ""); err != nil {
		return fmt.Errorf("failed to store face encoding for %s: %w", personID, err)
	}
	s.recognizer.AppendMirror(encoding, person.Name, person.PersonID)
	return nil
}

// ListFaces returns every stored encoding entry
func (s *PersonService) ListFaces() []facestore.Entry {
	return s.store.List()
}

// ClearFaces wipes the face store and the recognizer mirror. Person rows are
// untouched; people can be re-registered afterwards.
func (s *PersonService) ClearFaces() error {
	s.facesMu.Lock()
	defer s.facesMu.Unlock()
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear face store: %w", err)
	}
	s.recognizer.ClearMirror()
	log.Printf("recognition: cleared all face encodings")
	return nil
}

// Get retrieves a person by id
func (s *PersonService) Get(personID string) (*models.Person, error) {
	person, err := s.personRepo.GetByPersonID(personID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	return person, nil
}

// List retrieves people with optional status and department filters
func (s *PersonService) List(status, department string) ([]models.Person, error) {
	return s.personRepo.List(status, department)
}

// Update modifies a person's profile fields
func (s *PersonService) Update(person *models.Person) error {
	err := s.personRepo.Update(person)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPersonNotFound
	}
	return err
}

// SetStatus changes a person's lifecycle status
func (s *PersonService) SetStatus(personID, status string) error {
	err := s.personRepo.SetStatus(personID, status)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPersonNotFound
	}
	return err
}

// Delete marks the person as deleted and removes their stored encodings,
// then republishes the mirror. Attendance history stays intact; the status
// keeps the row around for it.
func (s *PersonService) Delete(personID string) error {
	err := s.personRepo.SetStatus(personID, models.PersonStatusDeleted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPersonNotFound
		}
		return err
	}

	s.facesMu.Lock()
	defer s.facesMu.Unlock()
	removed, err := s.store.RemovePerson(personID)
	if err != nil {
		return fmt.Errorf("person deleted but encoding cleanup failed for %s: %w", personID, err)
	}
	if removed > 0 {
		s.LoadMirror()
		log.Printf("recognition: removed %d encodings for deleted person %s", removed, personID)
	}
	return nil
}
