package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

// Seed is the fixture format for the in-memory backend. Counters are never
// read from a seed; every section starts empty and every student unloaded.
type Seed struct {
	Sections []models.Section `json:"sections"`
	Students []SeedStudent    `json:"students"`
}

// SeedStudent is a student with its completed courses.
type SeedStudent struct {
	ID               string   `json:"id"`
	FullName         string   `json:"full_name"`
	Email            string   `json:"email"`
	MaxCredits       int      `json:"max_credits"`
	CompletedCourses []string `json:"completed_courses"`
}

// LoadSeedFile reads a JSON seed from path into store.
func LoadSeedFile(store *MemoryStore, path string, defaultMaxCredits int) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return LoadSeed(store, f, defaultMaxCredits)
}

// LoadSeed decodes a JSON seed into store and returns how many sections and
// students it added. Students without max_credits get defaultMaxCredits.
func LoadSeed(store *MemoryStore, r io.Reader, defaultMaxCredits int) (int, int, error) {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return 0, 0, fmt.Errorf("decode seed: %w", err)
	}
	for i, section := range seed.Sections {
		if section.ID == "" || section.Capacity < 0 || section.Credits < 0 {
			return 0, 0, fmt.Errorf("seed section %d: id, capacity and credits are required", i)
		}
		section.SeatsTaken = 0
		store.PutSection(section)
	}
	for i, student := range seed.Students {
		if student.ID == "" {
			return 0, 0, fmt.Errorf("seed student %d: id is required", i)
		}
		maxCredits := student.MaxCredits
		if maxCredits <= 0 {
			maxCredits = defaultMaxCredits
		}
		store.PutStudent(models.StudentLoad{
			StudentID:  student.ID,
			FullName:   student.FullName,
			Email:      student.Email,
			MaxCredits: maxCredits,
		})
		for _, course := range student.CompletedCourses {
			store.AddCompletedCourse(student.ID, course)
		}
	}
	return len(seed.Sections), len(seed.Students), nil
}
