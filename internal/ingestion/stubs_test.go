package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/repository"
)

type stubFarmRepo struct {
	farms map[string]domain.Farm
}

func (s *stubFarmRepo) Create(context.Context, domain.Farm) (domain.Farm, error) {
	return domain.Farm{}, nil
}

func (s *stubFarmRepo) GetByID(context.Context, uuid.UUID) (domain.Farm, error) {
	return domain.Farm{}, repository.ErrNotFound
}

func (s *stubFarmRepo) List(context.Context) ([]domain.Farm, error) { return nil, nil }

func (s *stubFarmRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *stubFarmRepo) MapByNames(_ context.Context, _ repository.Querier, names []string) (map[string]domain.Farm, error) {
	out := make(map[string]domain.Farm)
	for _, name := range names {
		if farm, ok := s.farms[name]; ok {
			out[name] = farm
		}
	}
	return out, nil
}

func (s *stubFarmRepo) InsertBulk(_ context.Context, _ repository.Querier, farms []domain.Farm) ([]domain.Farm, error) {
	return farms, nil
}

func (s *stubFarmRepo) UpdateProfile(_ context.Context, _ repository.Querier, _ uuid.UUID, farm domain.Farm) (domain.Farm, error) {
	return farm, nil
}

type stubCropRepo struct {
	crops map[string]domain.Crop
}

func (s *stubCropRepo) Create(context.Context, domain.Crop) (domain.Crop, error) {
	return domain.Crop{}, nil
}

func (s *stubCropRepo) GetByID(context.Context, uuid.UUID) (domain.Crop, error) {
	return domain.Crop{}, repository.ErrNotFound
}

func (s *stubCropRepo) List(context.Context) ([]domain.Crop, error) { return nil, nil }

func (s *stubCropRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *stubCropRepo) MapByNames(_ context.Context, _ repository.Querier, names []string) (map[string]domain.Crop, error) {
	out := make(map[string]domain.Crop)
	for _, name := range names {
		if crop, ok := s.crops[name]; ok {
			out[name] = crop
		}
	}
	return out, nil
}

func (s *stubCropRepo) InsertBulk(_ context.Context, _ repository.Querier, crops []domain.Crop) ([]domain.Crop, error) {
	return crops, nil
}

type stubUserRepo struct {
	users map[string]domain.User
}

func (s *stubUserRepo) GetByID(context.Context, uuid.UUID) (domain.User, error) {
	return domain.User{}, repository.ErrNotFound
}

func (s *stubUserRepo) List(context.Context) ([]domain.User, error) { return nil, nil }

func (s *stubUserRepo) Delete(context.Context, uuid.UUID) error { return nil }

func (s *stubUserRepo) MapByUsernames(_ context.Context, _ repository.Querier, usernames []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User)
	for _, username := range usernames {
		if user, ok := s.users[username]; ok {
			out[username] = user
		}
	}
	return out, nil
}

func (s *stubUserRepo) UpdateName(_ context.Context, _ repository.Querier, _ uuid.UUID, name *string) (domain.User, error) {
	return domain.User{Name: name}, nil
}

type stubUploader struct {
	objects map[string][]byte
}

func (s *stubUploader) Upload(_ context.Context, objectName string, data []byte, _ string) error {
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[objectName] = data
	return nil
}
