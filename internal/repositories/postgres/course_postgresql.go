package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/learning-progress-service/internal/cache"
	"github.com/SAP-F-2025/learning-progress-service/internal/models"
	"github.com/SAP-F-2025/learning-progress-service/internal/repositories"
)

type CoursePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewCoursePostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.CourseRepository {
	return &CoursePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	if err := db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *CoursePostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := c.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).Model(&models.Course{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// LocateLesson walks lesson -> module -> course. A missing link anywhere in
// the chain is reported as gorm.ErrRecordNotFound.
func (c *CoursePostgreSQL) LocateLesson(ctx context.Context, tx *gorm.DB, lessonID uint) (*repositories.LessonLocation, error) {
	db := c.getDB(tx)
	var loc repositories.LessonLocation
	result := db.WithContext(ctx).
		Table("lessons").
		Select("lessons.id AS lesson_id, modules.id AS module_id, courses.id AS course_id").
		Joins("JOIN modules ON modules.id = lessons.module_id").
		Joins("JOIN courses ON courses.id = modules.course_id").
		Where("lessons.id = ?", lessonID).
		Limit(1).
		Scan(&loc)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to locate lesson: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &loc, nil
}

// LessonIDsByCourse reads the lesson ids of a course straight from the store.
// An unknown course is reported as gorm.ErrRecordNotFound.
func (c *CoursePostgreSQL) LessonIDsByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]uint, error) {
	db := c.getDB(tx)
	exists, err := c.ExistsByID(ctx, db, courseID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}

	var lessonIDs []uint
	if err := db.WithContext(ctx).
		Table("lessons").
		Joins("JOIN modules ON modules.id = lessons.module_id").
		Where("modules.course_id = ?", courseID).
		Order("lessons.id ASC").
		Pluck("lessons.id", &lessonIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list course lessons: %w", err)
	}
	return lessonIDs, nil
}

// GetStructure returns the ordered module/lesson layout, cached in redis.
func (c *CoursePostgreSQL) GetStructure(ctx context.Context, tx *gorm.DB, courseID uint) (*repositories.CourseStructure, error) {
	db := c.getDB(tx)
	cacheKey := fmt.Sprintf("course:%d:structure", courseID)

	var structure repositories.CourseStructure
	err := c.cacheManager.Catalog.CacheOrExecute(ctx, cacheKey, &structure, cache.CatalogCacheConfig.TTL, func() (interface{}, error) {
		exists, err := c.ExistsByID(ctx, db, courseID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, gorm.ErrRecordNotFound
		}

		var modules []models.Module
		if err := db.WithContext(ctx).
			Where("course_id = ?", courseID).
			Order("order_index ASC, id ASC").
			Preload("Lessons", func(q *gorm.DB) *gorm.DB {
				return q.Order("order_index ASC, id ASC")
			}).
			Find(&modules).Error; err != nil {
			return nil, fmt.Errorf("failed to load course modules: %w", err)
		}

		result := &repositories.CourseStructure{CourseID: courseID, Modules: make([]repositories.ModuleStructure, 0, len(modules))}
		for _, m := range modules {
			ms := repositories.ModuleStructure{ModuleID: m.ID, Title: m.Title, LessonIDs: make([]uint, 0, len(m.Lessons))}
			for _, l := range m.Lessons {
				ms.LessonIDs = append(ms.LessonIDs, l.ID)
			}
			result.Modules = append(result.Modules, ms)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return &structure, nil
}

func (c *CoursePostgreSQL) InvalidateStructure(ctx context.Context, courseID uint) {
	cache.InvalidateCourseCache(ctx, c.cacheManager, courseID)
}

func (c *CoursePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}
