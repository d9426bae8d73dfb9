package rpc

import "github.com/spooky-finn/marketbus/domain"

type ValidationServiceConfig struct {
	AvailableVenues []string
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

// IsSupportedVenue accepts known venues listed in the config. An empty list allows every known venue.
func (s *ValidationService) IsSupportedVenue(venue string) bool {
	exchange, err := domain.ParseExchange(venue)
	if err != nil {
		return false
	}
	if len(s.config.AvailableVenues) == 0 {
		return true
	}

	for _, v := range s.config.AvailableVenues {
		if v == exchange.String() {
			return true
		}
	}
	return false
}
