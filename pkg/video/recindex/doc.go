// Package recindex reads and writes recording index files.
package recindex

// An index file is written next to a media file while it is being
// recorded, so the sample table can be rebuilt after a power loss.
// Requirements.
//   1. Every record must be durable before the next frame is accepted.
//   2. A record cut short by a power loss must not hide earlier records.
//   3. Readable without the media file.
//
//
//
// <name>.mp4.index: ASCII file.
//   header  "FLASHREC <version> <codec> <width> <height> <fps>\n"
//   records []record
//
// record {
//   "<size>:<type>|"
//
//   size: decimal sample size in bytes, as stored in the media file.
//   type: I IDR frame
//         i I frame
//         P P frame
//         J JPEG frame
//         ? unknown
// }
