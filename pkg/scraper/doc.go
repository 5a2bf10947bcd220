// Package scraper pages through the Rosa Khutor webcam listing and enriches
// every camera with its HLS stream URL and, optionally, the raw widget JSON
// served by sochi.camera.
//
// One call to Next performs:
//   - one listing request for the current page
//   - a widget wave: one concurrent request per camera for its item stub,
//     from which the widget token is extracted
//   - an optional detail wave: one concurrent request per widget token for
//     the widget JSON, sent with the "detail" header profile
//
// Example usage:
//
//	client, err := transport.New(transport.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	s, err := scraper.New(client, scraper.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	for cameras, err := range s.Pages(ctx, true) {
//		if err != nil {
//			return err
//		}
//		for _, cam := range cameras {
//			fmt.Println(cam.Name, cam.StreamURL)
//		}
//	}
//
// A wave is all-or-nothing: one failed request fails the whole Next call.
// Next never retries.
package scraper
